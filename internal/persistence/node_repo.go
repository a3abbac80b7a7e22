package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skobkin/meshwatch/internal/domain"
)

type NodeRepo struct {
	db *sql.DB
}

func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// Upsert writes a node snapshot. NULL columns in a sparse update keep the stored values.
func (r *NodeRepo) Upsert(ctx context.Context, n domain.Node) error {
	neighborsJSON, err := marshalJSONNullable(n.Neighbors)
	if err != nil {
		return fmt.Errorf("marshal neighbors: %w", err)
	}
	heardByJSON, err := marshalJSONNullable(n.HeardBy)
	if err != nil {
		return fmt.Errorf("marshal heard by: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO nodes(
			node_id, node_num, long_name, short_name, board_model, device_role, is_licensed,
			latitude, longitude, altitude, position_precision, position_at,
			battery_level, voltage, channel_utilization, air_util_tx, uptime_seconds,
			temperature, humidity, pressure, gas_resistance, telemetry_at,
			rssi, snr, hop_count, neighbors_json, heard_by_json,
			first_seen_at, last_heard_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			node_num = excluded.node_num,
			long_name = CASE WHEN excluded.long_name <> '' THEN excluded.long_name ELSE nodes.long_name END,
			short_name = CASE WHEN excluded.short_name <> '' THEN excluded.short_name ELSE nodes.short_name END,
			board_model = COALESCE(excluded.board_model, nodes.board_model),
			device_role = COALESCE(excluded.device_role, nodes.device_role),
			is_licensed = COALESCE(excluded.is_licensed, nodes.is_licensed),
			latitude = COALESCE(excluded.latitude, nodes.latitude),
			longitude = COALESCE(excluded.longitude, nodes.longitude),
			altitude = COALESCE(excluded.altitude, nodes.altitude),
			position_precision = COALESCE(excluded.position_precision, nodes.position_precision),
			position_at = MAX(excluded.position_at, nodes.position_at),
			battery_level = COALESCE(excluded.battery_level, nodes.battery_level),
			voltage = COALESCE(excluded.voltage, nodes.voltage),
			channel_utilization = COALESCE(excluded.channel_utilization, nodes.channel_utilization),
			air_util_tx = COALESCE(excluded.air_util_tx, nodes.air_util_tx),
			uptime_seconds = COALESCE(excluded.uptime_seconds, nodes.uptime_seconds),
			temperature = COALESCE(excluded.temperature, nodes.temperature),
			humidity = COALESCE(excluded.humidity, nodes.humidity),
			pressure = COALESCE(excluded.pressure, nodes.pressure),
			gas_resistance = COALESCE(excluded.gas_resistance, nodes.gas_resistance),
			telemetry_at = MAX(excluded.telemetry_at, nodes.telemetry_at),
			rssi = COALESCE(excluded.rssi, nodes.rssi),
			snr = COALESCE(excluded.snr, nodes.snr),
			hop_count = COALESCE(excluded.hop_count, nodes.hop_count),
			neighbors_json = COALESCE(excluded.neighbors_json, nodes.neighbors_json),
			heard_by_json = COALESCE(excluded.heard_by_json, nodes.heard_by_json),
			first_seen_at = CASE WHEN nodes.first_seen_at > 0 THEN nodes.first_seen_at ELSE excluded.first_seen_at END,
			last_heard_at = MAX(excluded.last_heard_at, nodes.last_heard_at),
			updated_at = excluded.updated_at
	`,
		n.NodeID, int64(n.NodeNum), n.LongName, n.ShortName, nullableString(n.BoardModel), nullableString(n.Role), nullableBool(n.IsLicensed),
		nullable(n.Latitude), nullable(n.Longitude), nullable(n.Altitude), nullable(n.PositionPrecision), toUnixMillis(n.PositionAt),
		nullable(n.BatteryLevel), nullable(n.Voltage), nullable(n.ChannelUtilization), nullable(n.AirUtilTx), nullable(n.UptimeSeconds),
		nullable(n.Temperature), nullable(n.Humidity), nullable(n.Pressure), nullable(n.GasResistance), toUnixMillis(n.TelemetryAt),
		nullable(n.RSSI), nullable(n.SNR), nullable(n.HopCount), neighborsJSON, heardByJSON,
		toUnixMillis(n.FirstSeenAt), toUnixMillis(n.LastHeardAt), toUnixMillis(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}

	return nil
}

func (r *NodeRepo) ListSortedByLastHeard(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			node_id, node_num, long_name, short_name, board_model, device_role, is_licensed,
			latitude, longitude, altitude, position_precision, position_at,
			battery_level, voltage, channel_utilization, air_util_tx, uptime_seconds,
			temperature, humidity, pressure, gas_resistance, telemetry_at,
			rssi, snr, hop_count, neighbors_json, heard_by_json,
			first_seen_at, last_heard_at, updated_at
		FROM nodes
		ORDER BY last_heard_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return out, nil
}

// DeleteHeardBefore removes nodes last heard before cutoff along with routes to them.
func (r *NodeRepo) DeleteHeardBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ms := toUnixMillis(cutoff)
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM routes WHERE destination_id IN (
			SELECT node_id FROM nodes WHERE last_heard_at > 0 AND last_heard_at < ?
		)
	`, ms); err != nil {
		return 0, fmt.Errorf("delete stale routes: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM nodes WHERE last_heard_at > 0 AND last_heard_at < ?`, ms)
	if err != nil {
		return 0, fmt.Errorf("delete stale nodes: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted nodes: %w", err)
	}

	return removed, nil
}

func scanNode(scanner interface {
	Scan(dest ...any) error
}) (domain.Node, error) {
	var (
		n                                       domain.Node
		nodeNum                                 int64
		board, role, neighborsRaw, heardByRaw   sql.NullString
		licensed, altitude, precision, battery  sql.NullInt64
		uptime, rssi, hops                      sql.NullInt64
		lat, lon, voltage, chUtil, airUtil      sql.NullFloat64
		temperature, humidity, pressure, gasRes sql.NullFloat64
		snr                                     sql.NullFloat64
		positionMs, telemetryMs                 int64
		firstMs, heardMs, updMs                 int64
	)
	if err := scanner.Scan(
		&n.NodeID, &nodeNum, &n.LongName, &n.ShortName, &board, &role, &licensed,
		&lat, &lon, &altitude, &precision, &positionMs,
		&battery, &voltage, &chUtil, &airUtil, &uptime,
		&temperature, &humidity, &pressure, &gasRes, &telemetryMs,
		&rssi, &snr, &hops, &neighborsRaw, &heardByRaw,
		&firstMs, &heardMs, &updMs,
	); err != nil {
		return domain.Node{}, fmt.Errorf("scan node: %w", err)
	}

	n.NodeNum = uint32(nodeNum)
	n.BoardModel = board.String
	n.Role = role.String
	n.IsLicensed = boolPtr(licensed)
	n.Latitude = floatPtr(lat)
	n.Longitude = floatPtr(lon)
	n.Altitude = int32Ptr(altitude)
	n.PositionPrecision = uint32Ptr(precision)
	n.PositionAt = fromUnixMillis(positionMs)
	n.BatteryLevel = uint32Ptr(battery)
	n.Voltage = floatPtr(voltage)
	n.ChannelUtilization = floatPtr(chUtil)
	n.AirUtilTx = floatPtr(airUtil)
	n.UptimeSeconds = uint32Ptr(uptime)
	n.Temperature = floatPtr(temperature)
	n.Humidity = floatPtr(humidity)
	n.Pressure = floatPtr(pressure)
	n.GasResistance = floatPtr(gasRes)
	n.TelemetryAt = fromUnixMillis(telemetryMs)
	n.RSSI = intPtr(rssi)
	n.SNR = floatPtr(snr)
	n.HopCount = intPtr(hops)
	n.FirstSeenAt = fromUnixMillis(firstMs)
	n.LastHeardAt = fromUnixMillis(heardMs)
	n.UpdatedAt = fromUnixMillis(updMs)
	if err := unmarshalJSONNullable(neighborsRaw, &n.Neighbors); err != nil {
		return domain.Node{}, fmt.Errorf("decode neighbors of %s: %w", n.NodeID, err)
	}
	if err := unmarshalJSONNullable(heardByRaw, &n.HeardBy); err != nil {
		return domain.Node{}, fmt.Errorf("decode heard by of %s: %w", n.NodeID, err)
	}

	return n, nil
}
