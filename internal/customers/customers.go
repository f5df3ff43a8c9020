package customers

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound   = errors.New("customer not found")
	ErrEmailTaken = errors.New("email is already registered")
	ErrValidation = errors.New("invalid customer")
)

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields a create request must carry. Phone is optional.
func Validate(c Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("email must be a valid address: %w", ErrValidation)
	}
	return nil
}

type Repo struct {
	DB *pgxpool.Pool
}

func (r *Repo) Create(ctx context.Context, c Customer) (Customer, error) {
	if err := Validate(c); err != nil {
		return Customer{}, err
	}
	var phone *string
	if c.Phone != "" {
		phone = &c.Phone
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO customers(name, email, phone)
		VALUES ($1, $2, $3) RETURNING id, created_at`,
		c.Name, c.Email, phone).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Customer{}, ErrEmailTaken
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	var phone *string
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at
		FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &phone, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	if phone != nil {
		c.Phone = *phone
	}
	return c, nil
}
