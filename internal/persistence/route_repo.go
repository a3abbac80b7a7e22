package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/meshwatch/internal/domain"
)

// RouteRepo implements domain.RouteRepository using SQLite.
type RouteRepo struct {
	db *sql.DB
}

func NewRouteRepo(db *sql.DB) *RouteRepo {
	return &RouteRepo{db: db}
}

type routeHopRow struct {
	NodeID string  `json:"node_id"`
	SNR    float64 `json:"snr"`
	At     int64   `json:"at,omitempty"`
}

func (r *RouteRepo) Upsert(ctx context.Context, route domain.MeshRoute) error {
	hops := make([]routeHopRow, 0, len(route.Hops))
	for _, h := range route.Hops {
		hops = append(hops, routeHopRow{NodeID: h.NodeID, SNR: h.SNR, At: toUnixMillis(h.At)})
	}
	hopsJSON, err := marshalJSONNullable(hops)
	if err != nil {
		return fmt.Errorf("marshal route hops: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO routes(destination_id, hops_json, discovered_at, last_used_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(destination_id) DO UPDATE SET
			hops_json = excluded.hops_json,
			discovered_at = excluded.discovered_at,
			last_used_at = excluded.last_used_at
	`, route.DestinationID, hopsJSON, toUnixMillis(route.DiscoveredAt), toUnixMillis(route.LastUsedAt))
	if err != nil {
		return fmt.Errorf("upsert route: %w", err)
	}

	return nil
}

func (r *RouteRepo) List(ctx context.Context) ([]domain.MeshRoute, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT destination_id, hops_json, discovered_at, last_used_at
		FROM routes
		ORDER BY discovered_at DESC
		LIMIT ?
	`, domain.MaxRoutes)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.MeshRoute
	for rows.Next() {
		var (
			route          domain.MeshRoute
			hopsRaw        sql.NullString
			discMs, usedMs int64
			hops           []routeHopRow
		)
		if err := rows.Scan(&route.DestinationID, &hopsRaw, &discMs, &usedMs); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		if err := unmarshalJSONNullable(hopsRaw, &hops); err != nil {
			return nil, fmt.Errorf("decode route hops to %s: %w", route.DestinationID, err)
		}
		for _, h := range hops {
			route.Hops = append(route.Hops, domain.RouteHop{NodeID: h.NodeID, SNR: h.SNR, At: fromUnixMillis(h.At)})
		}
		route.DiscoveredAt = fromUnixMillis(discMs)
		route.LastUsedAt = fromUnixMillis(usedMs)
		out = append(out, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", err)
	}

	return out, nil
}
