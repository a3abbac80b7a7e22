package domain

import "time"

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   PointGeometry  `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// PointGeometry holds [longitude, latitude] or [longitude, latitude, altitude].
type PointGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// GeoJSON exports every node with a valid position as a point feature.
func (s *NetworkStore) GeoJSON() FeatureCollection {
	nodes := s.Nodes()
	out := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(nodes))}
	for _, node := range nodes {
		if !node.HasPosition() {
			continue
		}
		coords := []float64{*node.Longitude, *node.Latitude}
		if node.Altitude != nil {
			coords = append(coords, float64(*node.Altitude))
		}

		props := map[string]any{
			"id":        node.NodeID,
			"name":      NodeDisplayName(node),
			"online":    node.Online,
			"hardware":  node.BoardModel,
			"role":      node.Role,
			"neighbors": len(node.Neighbors),
		}
		if !node.LastHeardAt.IsZero() {
			props["last_heard"] = node.LastHeardAt.UTC().Format(time.RFC3339)
		}
		if node.BatteryLevel != nil {
			props["battery"] = *node.BatteryLevel
		}
		if node.SNR != nil {
			props["snr"] = *node.SNR
		}

		out.Features = append(out.Features, Feature{
			Type:       "Feature",
			Geometry:   PointGeometry{Type: "Point", Coordinates: coords},
			Properties: props,
		})
	}

	return out
}
