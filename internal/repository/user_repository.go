package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/account-service/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrNameTaken = errors.New("name already registered")
)

const uniqueViolation = "23505"

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByName(ctx context.Context, name string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	CountByRole(ctx context.Context) (map[domain.Role]int64, error)
}

// UserFilter defines query params for account listing.
type UserFilter struct {
	Role   *domain.Role
	Limit  int
	Offset int
}

func (f UserFilter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

func (f UserFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, password_hash, role, mobile, email, dob, gender, city, agree_terms,
        profile_image_key, profile_image_type, profile_image_size,
        document_key, document_type, document_size,
        created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, password_hash, role, mobile, email, dob, gender, city, agree_terms,
            profile_image_key, profile_image_type, profile_image_size,
            document_key, document_type, document_size)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`

	pKey, pType, pSize := refColumns(user.ProfileImage)
	dKey, dType, dSize := refColumns(user.Document)
	err := r.pool.QueryRow(ctx, query,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Mobile,
		user.Email,
		user.DOB,
		user.Gender,
		user.City,
		user.AgreeTerms,
		pKey, pType, pSize,
		dKey, dType, dSize,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapPgError(err)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, password_hash=$2, role=$3, mobile=$4, email=$5, dob=$6, gender=$7,
            city=$8, agree_terms=$9,
            profile_image_key=$10, profile_image_type=$11, profile_image_size=$12,
            document_key=$13, document_type=$14, document_size=$15,
            updated_at=NOW()
        WHERE id=$16
        RETURNING updated_at`

	if _, err := uuid.Parse(user.ID); err != nil {
		return ErrNotFound
	}
	pKey, pType, pSize := refColumns(user.ProfileImage)
	dKey, dType, dSize := refColumns(user.Document)
	err := r.pool.QueryRow(ctx, query,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Mobile,
		user.Email,
		user.DOB,
		user.Gender,
		user.City,
		user.AgreeTerms,
		pKey, pType, pSize,
		dKey, dType, dSize,
		user.ID,
	).Scan(&user.UpdatedAt)
	return mapPgError(err)
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) FindByName(ctx context.Context, name string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE name=$1`
	return scanUser(r.pool.QueryRow(ctx, query, name))
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	if filter.Role != nil {
		args = append(args, *filter.Role)
		query += fmt.Sprintf(" WHERE role=$%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT %d OFFSET %d", filter.limit(), filter.offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *userRepository) CountByRole(ctx context.Context) (map[domain.Role]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[domain.Role]int64{}
	for rows.Next() {
		var (
			role  domain.Role
			count int64
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[role] = count
	}
	return counts, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user          domain.User
		pKey, pType   *string
		pSize         *int64
		dKey, dType   *string
		dSize         *int64
		mobile, email *string
		gender, city  *string
	)
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&mobile,
		&email,
		&user.DOB,
		&gender,
		&city,
		&user.AgreeTerms,
		&pKey, &pType, &pSize,
		&dKey, &dType, &dSize,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	user.Mobile = deref(mobile)
	user.Email = deref(email)
	user.Gender = deref(gender)
	user.City = deref(city)
	user.ProfileImage = refFromColumns(pKey, pType, pSize)
	user.Document = refFromColumns(dKey, dType, dSize)
	return &user, nil
}

func refColumns(ref *domain.AttachmentRef) (*string, *string, *int64) {
	if ref == nil {
		return nil, nil, nil
	}
	return &ref.Key, &ref.ContentType, &ref.Size
}

func refFromColumns(key, contentType *string, size *int64) *domain.AttachmentRef {
	if key == nil || *key == "" {
		return nil
	}
	ref := &domain.AttachmentRef{Key: *key, ContentType: deref(contentType)}
	if size != nil {
		ref.Size = *size
	}
	return ref
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrNameTaken
	}
	return err
}
