package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) GetCompany(ctx context.Context, id int) (*DeliveryCompany, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, display_name, supports_cod, supports_tracking,
		       supports_labels, supports_api_create, active, created_at
		FROM delivery_companies WHERE id = $1`, id)
	return scanCompany(row)
}

func (p *Postgres) GetCompanyByName(ctx context.Context, name string) (*DeliveryCompany, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, display_name, supports_cod, supports_tracking,
		       supports_labels, supports_api_create, active, created_at
		FROM delivery_companies WHERE lower(name) = lower($1)`, name)
	return scanCompany(row)
}

func (p *Postgres) ListCompanies(ctx context.Context) ([]DeliveryCompany, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, display_name, supports_cod, supports_tracking,
		       supports_labels, supports_api_create, active, created_at
		FROM delivery_companies WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryCompany
	for rows.Next() {
		var c DeliveryCompany
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &c.SupportsCOD,
			&c.SupportsTracking, &c.SupportsLabels, &c.SupportsAPICreate,
			&c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCompany(row pgx.Row) (*DeliveryCompany, error) {
	var c DeliveryCompany
	err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &c.SupportsCOD,
		&c.SupportsTracking, &c.SupportsLabels, &c.SupportsAPICreate,
		&c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Postgres) UpsertIntegration(ctx context.Context, integ *DeliveryIntegration) error {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO delivery_integrations
			(client_id, company_id, api_key_enc, api_secret_enc, webhook_secret_enc, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (client_id, company_id) DO UPDATE SET
			api_key_enc = EXCLUDED.api_key_enc,
			api_secret_enc = EXCLUDED.api_secret_enc,
			webhook_secret_enc = EXCLUDED.webhook_secret_enc,
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		integ.ClientID, integ.CompanyID, integ.APIKeyEnc, integ.APISecretEnc,
		integ.WebhookSecretEnc, integ.Enabled)
	return row.Scan(&integ.ID, &integ.CreatedAt, &integ.UpdatedAt)
}

func (p *Postgres) GetIntegration(ctx context.Context, clientID string, companyID int) (*DeliveryIntegration, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, client_id, company_id, api_key_enc, api_secret_enc,
		       webhook_secret_enc, enabled, created_at, updated_at
		FROM delivery_integrations WHERE client_id = $1 AND company_id = $2`,
		clientID, companyID)

	var integ DeliveryIntegration
	err := row.Scan(&integ.ID, &integ.ClientID, &integ.CompanyID,
		&integ.APIKeyEnc, &integ.APISecretEnc, &integ.WebhookSecretEnc,
		&integ.Enabled, &integ.CreatedAt, &integ.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &integ, nil
}

func (p *Postgres) ListIntegrations(ctx context.Context, clientID string) ([]DeliveryIntegration, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, client_id, company_id, api_key_enc, api_secret_enc,
		       webhook_secret_enc, enabled, created_at, updated_at
		FROM delivery_integrations WHERE client_id = $1 ORDER BY company_id`,
		clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryIntegration
	for rows.Next() {
		var integ DeliveryIntegration
		if err := rows.Scan(&integ.ID, &integ.ClientID, &integ.CompanyID,
			&integ.APIKeyEnc, &integ.APISecretEnc, &integ.WebhookSecretEnc,
			&integ.Enabled, &integ.CreatedAt, &integ.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, integ)
	}
	return out, rows.Err()
}

func (p *Postgres) DisableIntegration(ctx context.Context, clientID string, companyID int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE delivery_integrations SET enabled = false, updated_at = now()
		WHERE client_id = $1 AND company_id = $2`, clientID, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetOrderDelivery(ctx context.Context, orderID, clientID string) (*OrderDelivery, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT order_id, client_id, company_id, tracking_number, delivery_status,
		       label_url, cod_amount, recipient_name, recipient_phone,
		       recipient_address, wilaya, commune, weight_kg,
		       product_description, courier_response, assigned_at, updated_at
		FROM order_deliveries WHERE order_id = $1 AND client_id = $2`,
		orderID, clientID)

	var od OrderDelivery
	err := row.Scan(&od.OrderID, &od.ClientID, &od.CompanyID, &od.TrackingNumber,
		&od.DeliveryStatus, &od.LabelURL, &od.CODAmount, &od.RecipientName,
		&od.RecipientPhone, &od.RecipientAddress, &od.Wilaya, &od.Commune,
		&od.WeightKG, &od.ProductDescription, &od.CourierResponse,
		&od.AssignedAt, &od.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &od, nil
}

func (p *Postgres) GetOrderDeliveryByTracking(ctx context.Context, trackingNumber string) (*OrderDelivery, error) {
	if trackingNumber == "" {
		return nil, ErrNotFound
	}
	row := p.pool.QueryRow(ctx, `
		SELECT order_id, client_id, company_id, tracking_number, delivery_status,
		       label_url, cod_amount, recipient_name, recipient_phone,
		       recipient_address, wilaya, commune, weight_kg,
		       product_description, courier_response, assigned_at, updated_at
		FROM order_deliveries WHERE tracking_number = $1`, trackingNumber)

	var od OrderDelivery
	err := row.Scan(&od.OrderID, &od.ClientID, &od.CompanyID, &od.TrackingNumber,
		&od.DeliveryStatus, &od.LabelURL, &od.CODAmount, &od.RecipientName,
		&od.RecipientPhone, &od.RecipientAddress, &od.Wilaya, &od.Commune,
		&od.WeightKG, &od.ProductDescription, &od.CourierResponse,
		&od.AssignedAt, &od.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &od, nil
}

func (p *Postgres) UpdateOrderDelivery(ctx context.Context, od *OrderDelivery) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO order_deliveries
			(order_id, client_id, company_id, tracking_number, delivery_status,
			 label_url, cod_amount, recipient_name, recipient_phone,
			 recipient_address, wilaya, commune, weight_kg,
			 product_description, courier_response, assigned_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
		ON CONFLICT (order_id, client_id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			tracking_number = EXCLUDED.tracking_number,
			delivery_status = EXCLUDED.delivery_status,
			label_url = EXCLUDED.label_url,
			cod_amount = EXCLUDED.cod_amount,
			recipient_name = EXCLUDED.recipient_name,
			recipient_phone = EXCLUDED.recipient_phone,
			recipient_address = EXCLUDED.recipient_address,
			wilaya = EXCLUDED.wilaya,
			commune = EXCLUDED.commune,
			weight_kg = EXCLUDED.weight_kg,
			product_description = EXCLUDED.product_description,
			courier_response = EXCLUDED.courier_response,
			assigned_at = EXCLUDED.assigned_at,
			updated_at = now()`,
		od.OrderID, od.ClientID, od.CompanyID, od.TrackingNumber,
		od.DeliveryStatus, od.LabelURL, od.CODAmount, od.RecipientName,
		od.RecipientPhone, od.RecipientAddress, od.Wilaya, od.Commune,
		od.WeightKG, od.ProductDescription, od.CourierResponse, od.AssignedAt)
	return err
}

func (p *Postgres) InsertDeliveryEvent(ctx context.Context, ev *DeliveryEvent) error {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO delivery_events
			(tracking_number, event_type, status, raw_status, location,
			 courier_timestamp, webhook_verified, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, received_at`,
		ev.TrackingNumber, ev.EventType, ev.Status, ev.RawStatus, ev.Location,
		ev.CourierTimestamp, ev.WebhookVerified)
	return row.Scan(&ev.ID, &ev.ReceivedAt)
}

func (p *Postgres) ListDeliveryEvents(ctx context.Context, trackingNumber string) ([]DeliveryEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, tracking_number, event_type, status, raw_status, location,
		       courier_timestamp, webhook_verified, received_at
		FROM delivery_events WHERE tracking_number = $1 ORDER BY received_at, id`,
		trackingNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryEvent
	for rows.Next() {
		var ev DeliveryEvent
		if err := rows.Scan(&ev.ID, &ev.TrackingNumber, &ev.EventType,
			&ev.Status, &ev.RawStatus, &ev.Location, &ev.CourierTimestamp,
			&ev.WebhookVerified, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertLabel(ctx context.Context, label *ShippingLabel) error {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO shipping_labels (tracking_number, url, format, generated_at, expires_at)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (tracking_number) DO UPDATE SET
			url = EXCLUDED.url,
			format = EXCLUDED.format,
			generated_at = now(),
			expires_at = EXCLUDED.expires_at
		RETURNING generated_at`,
		label.TrackingNumber, label.URL, label.Format, label.ExpiresAt)
	return row.Scan(&label.GeneratedAt)
}

func (p *Postgres) GetLabel(ctx context.Context, trackingNumber string) (*ShippingLabel, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT tracking_number, url, format, generated_at, expires_at
		FROM shipping_labels WHERE tracking_number = $1`, trackingNumber)

	var label ShippingLabel
	err := row.Scan(&label.TrackingNumber, &label.URL, &label.Format,
		&label.GeneratedAt, &label.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &label, nil
}

var _ Store = (*Postgres)(nil)
