package audit

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Write(ctx context.Context, entries []models.AuditLog) error {
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		var ip *netip.Addr
		if e.IPAddress != "" {
			if parsed, err := netip.ParseAddr(e.IPAddress); err == nil {
				ip = &parsed
			}
		}
		details := e.Details
		if len(details) == 0 {
			details = []byte("{}")
		}
		rows = append(rows, []interface{}{
			e.ID, e.TenantID, e.APIKeyID, e.Action, e.ResourceType, e.ResourceID, details, ip, e.CreatedAt,
		})
	}

	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"audit_logs"},
		[]string{"id", "tenant_id", "api_key_id", "action", "resource_type", "resource_id", "details", "ip_address", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy audit logs: %w", err)
	}
	return nil
}

func (s *PostgresSink) Query(ctx context.Context, q Query) ([]models.AuditLog, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	query := `SELECT id, tenant_id, api_key_id, action, resource_type, resource_id, details, ip_address, created_at
			  FROM audit_logs WHERE true`
	var args []interface{}
	argIdx := 1

	if q.TenantID != nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, *q.TenantID)
		argIdx++
	}
	if q.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, q.Action)
		argIdx++
	}
	if q.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *q.StartDate)
		argIdx++
	}
	if q.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *q.EndDate)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var ip *netip.Addr
		if err := rows.Scan(&l.ID, &l.TenantID, &l.APIKeyID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Details, &ip, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if ip != nil {
			l.IPAddress = ip.String()
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
