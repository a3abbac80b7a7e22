package radio

import (
	"errors"
	"fmt"

	generated "github.com/meshtastic/go/generated"
	"google.golang.org/protobuf/proto"

	"github.com/skobkin/meshwatch/internal/meshcrypto"
)

var (
	ErrCryptoUnavailable = errors.New("crypto unavailable")
	ErrDecodeUnavailable = errors.New("decode unavailable")

	errNoPortnum = errors.New("data message without portnum")
)

// Capabilities switches processor stages on or off at construction time.
type Capabilities struct {
	Crypto bool
	Decode bool
}

// FullCapabilities enables both decryption and decoding.
var FullCapabilities = Capabilities{Crypto: true, Decode: true}

// Envelope is the packet header and the gateway metadata around it.
type Envelope struct {
	From      uint32
	To        uint32
	PacketID  uint64
	Channel   uint32
	HopLimit  uint32
	HopStart  uint32
	WantAck   bool
	RxSNR     float32
	RxRSSI    int32
	RxTime    uint32
	RelayNode uint32
	ViaMQTT   bool
	ChannelID string
	GatewayID string
}

// Hops returns hops traversed so far when the packet carries a usable hop start.
func (e Envelope) Hops() (int, bool) {
	if e.HopStart == 0 || e.HopStart < e.HopLimit {
		return 0, false
	}

	return int(e.HopStart - e.HopLimit), true
}

// ProcessedPacket is the outcome of Processor.Process. Success is false whenever Error is set.
type ProcessedPacket struct {
	Success   bool
	Error     string
	Envelope  Envelope
	Port      PortNum
	Decoded   Decoded
	Encrypted bool
}

// Processor turns raw transport bytes into decoded packets.
type Processor struct {
	cipher *meshcrypto.Cipher
	caps   Capabilities
}

func NewProcessor(cipher *meshcrypto.Cipher, caps Capabilities) *Processor {
	if cipher == nil {
		caps.Crypto = false
	}

	return &Processor{cipher: cipher, caps: caps}
}

// Capabilities returns the stages this processor was built with.
func (p *Processor) Capabilities() Capabilities {
	return p.caps
}

// Process parses raw as a ServiceEnvelope, a bare MeshPacket or a bare Data message, decrypts
// when needed and decodes the payload. It never panics.
func (p *Processor) Process(raw []byte) (out ProcessedPacket) {
	defer func() {
		if r := recover(); r != nil {
			out = ProcessedPacket{Error: fmt.Sprintf("process packet: %v", r)}
		}
	}()

	if !p.caps.Decode {
		return failed(Envelope{}, ErrDecodeUnavailable)
	}
	if len(raw) == 0 {
		return failed(Envelope{}, errors.New("empty payload"))
	}

	packet, env, ok := parsePacket(raw)
	if !ok {
		data, err := unmarshalData(raw)
		if err != nil {
			return failed(Envelope{}, fmt.Errorf("unrecognized packet: %w", err))
		}

		return p.ProcessDecoded(Envelope{}, data)
	}

	if decoded := packet.GetDecoded(); decoded != nil {
		return p.ProcessDecoded(env, decoded)
	}

	return p.processEncrypted(env, packet.GetEncrypted())
}

// processEncrypted expects the decrypted bytes to be a protobuf Data message. JSON bodies are
// only accepted on the json topic.
func (p *Processor) processEncrypted(env Envelope, body []byte) ProcessedPacket {
	if !p.caps.Crypto {
		return failed(env, ErrCryptoUnavailable)
	}

	plain := p.cipher.Decrypt(body, env.PacketID, env.From)
	if len(plain) > 0 && p.cipher.Enabled() {
		if data, err := unmarshalData(plain); err == nil {
			out := p.ProcessDecoded(env, data)
			out.Encrypted = true

			return out
		}
	}

	// Some gateways forward plaintext on the encrypted topic.
	data, err := unmarshalData(body)
	if err != nil {
		return failed(env, fmt.Errorf("decrypt packet %d from %s: %w", env.PacketID, formatNodeNum(env.From), err))
	}

	return p.ProcessDecoded(env, data)
}

// ProcessDecoded decodes a Data message that arrived without encryption.
func (p *Processor) ProcessDecoded(env Envelope, data *generated.Data) ProcessedPacket {
	if !p.caps.Decode {
		return failed(env, ErrDecodeUnavailable)
	}
	if data == nil {
		return failed(env, errors.New("missing data payload"))
	}

	port := PortNum(data.GetPortnum())

	return ProcessedPacket{
		Success:  true,
		Envelope: env,
		Port:     port,
		Decoded:  Decode(port, data.GetPayload()),
	}
}

// Encode builds a ServiceEnvelope for payload, encrypting it when the cipher has a key.
func (p *Processor) Encode(env Envelope, port PortNum, payload []byte) ([]byte, error) {
	if port == PortUnknown {
		return nil, errors.New("port is required")
	}
	data := &generated.Data{Portnum: generated.PortNum(port), Payload: payload}
	packet := &generated.MeshPacket{
		From:      env.From,
		To:        env.To,
		Id:        uint32(env.PacketID),
		Channel:   env.Channel,
		HopLimit:  env.HopLimit,
		HopStart:  env.HopStart,
		WantAck:   env.WantAck,
		RelayNode: env.RelayNode,
		ViaMqtt:   env.ViaMQTT,
	}

	if p.caps.Crypto && p.cipher.Enabled() {
		plain, err := proto.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		enc := p.cipher.Encrypt(plain, env.PacketID, env.From)
		if len(enc) == 0 {
			return nil, fmt.Errorf("encrypt packet %d", env.PacketID)
		}
		packet.PayloadVariant = &generated.MeshPacket_Encrypted{Encrypted: enc}
	} else {
		packet.PayloadVariant = &generated.MeshPacket_Decoded{Decoded: data}
	}

	raw, err := proto.Marshal(&generated.ServiceEnvelope{Packet: packet, ChannelId: env.ChannelID, GatewayId: env.GatewayID})
	if err != nil {
		return nil, fmt.Errorf("marshal service envelope: %w", err)
	}

	return raw, nil
}

func parsePacket(raw []byte) (*generated.MeshPacket, Envelope, bool) {
	var se generated.ServiceEnvelope
	if err := proto.Unmarshal(raw, &se); err == nil && se.GetPacket().GetPayloadVariant() != nil {
		env := envelopeFromPacket(se.GetPacket())
		env.ChannelID = se.GetChannelId()
		env.GatewayID = se.GetGatewayId()

		return se.GetPacket(), env, true
	}

	var packet generated.MeshPacket
	if err := proto.Unmarshal(raw, &packet); err == nil && packet.GetPayloadVariant() != nil {
		return &packet, envelopeFromPacket(&packet), true
	}

	return nil, Envelope{}, false
}

// unmarshalData rejects messages without a port. proto.Unmarshal accepts almost any byte
// string, and a missing port is what wrong-key output usually looks like.
func unmarshalData(raw []byte) (*generated.Data, error) {
	var data generated.Data
	if err := proto.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data.GetPortnum() == generated.PortNum_UNKNOWN_APP {
		return nil, errNoPortnum
	}

	return &data, nil
}

func envelopeFromPacket(packet *generated.MeshPacket) Envelope {
	return Envelope{
		From:      packet.GetFrom(),
		To:        packet.GetTo(),
		PacketID:  uint64(packet.GetId()),
		Channel:   packet.GetChannel(),
		HopLimit:  packet.GetHopLimit(),
		HopStart:  packet.GetHopStart(),
		WantAck:   packet.GetWantAck(),
		RxSNR:     packet.GetRxSnr(),
		RxRSSI:    packet.GetRxRssi(),
		RxTime:    packet.GetRxTime(),
		RelayNode: packet.GetRelayNode(),
		ViaMQTT:   packet.GetViaMqtt(),
	}
}

func failed(env Envelope, err error) ProcessedPacket {
	return ProcessedPacket{Envelope: env, Error: err.Error()}
}

func formatNodeNum(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}
