package repository

import (
	"context"
	"time"

	"sale-service/internal/domain/sale"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const saleColumns = `id, date, total_amount, client_id, status, rejection_reason,
        created_at, updated_at, created_by, updated_by, is_deleted`

type saleRepository struct {
	db DBTX
}

func NewSaleRepository(db DBTX) SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) Create(ctx context.Context, s *sale.Sale) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO sales (`+saleColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `,
		s.ID,
		s.Date,
		s.TotalAmount,
		s.ClientID,
		s.Status,
		s.RejectionReason,
		s.CreatedAt,
		s.UpdatedAt,
		s.CreatedBy,
		s.UpdatedBy,
		s.IsDeleted,
	)
	return err
}

func (r *saleRepository) GetByID(ctx context.Context, id uuid.UUID) (*sale.Sale, error) {
	return r.getByID(ctx, id, "")
}

func (r *saleRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*sale.Sale, error) {
	return r.getByID(ctx, id, " FOR UPDATE")
}

func (r *saleRepository) getByID(ctx context.Context, id uuid.UUID, lock string) (*sale.Sale, error) {
	row := r.db.QueryRow(ctx, `
        SELECT `+saleColumns+`
        FROM sales
        WHERE id = $1 AND is_deleted = FALSE`+lock, id)

	s, err := scanSale(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *saleRepository) GetAll(ctx context.Context) ([]sale.Sale, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+saleColumns+`
        FROM sales
        WHERE is_deleted = FALSE
        ORDER BY date ASC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]sale.Sale, 0)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// Update overwrites every mutable column. Last write wins.
func (r *saleRepository) Update(ctx context.Context, s *sale.Sale) error {
	now := time.Now().UTC()
	s.UpdatedAt = &now
	_, err := r.db.Exec(ctx, `
        UPDATE sales
        SET date = $1, total_amount = $2, client_id = $3, status = $4, rejection_reason = $5,
            updated_at = $6, updated_by = $7
        WHERE id = $8
    `,
		s.Date,
		s.TotalAmount,
		s.ClientID,
		s.Status,
		s.RejectionReason,
		s.UpdatedAt,
		s.UpdatedBy,
		s.ID,
	)
	return err
}

func (r *saleRepository) Delete(ctx context.Context, id uuid.UUID, updatedBy string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE sales
        SET is_deleted = TRUE, updated_at = $1, updated_by = $2
        WHERE id = $3
    `, time.Now().UTC(), updatedBy, id)
	return err
}

func scanSale(row pgx.Row) (*sale.Sale, error) {
	var s sale.Sale
	var status string
	if err := row.Scan(
		&s.ID,
		&s.Date,
		&s.TotalAmount,
		&s.ClientID,
		&status,
		&s.RejectionReason,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CreatedBy,
		&s.UpdatedBy,
		&s.IsDeleted,
	); err != nil {
		return nil, err
	}
	s.Status = sale.Status(status)
	return &s, nil
}
