package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hometracker.app/internal/auth"
)

var _ auth.AccountStore = (*Store)(nil)

const userColumns = `id, last_name, first_name, email, password, username, phone,
	birth_date, inscription_date, description, role_id, house_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*auth.Account, error) {
	var (
		acct        auth.Account
		username    sql.NullString
		phone       sql.NullString
		description sql.NullString
		birthDate   sql.NullTime
		houseID     sql.NullInt64
	)
	if err := row.Scan(
		&acct.ID, &acct.LastName, &acct.FirstName, &acct.Email, &acct.PasswordHash,
		&username, &phone, &birthDate, &acct.InscriptionDate, &description,
		&acct.RoleID, &houseID,
	); err != nil {
		return nil, err
	}
	acct.Username = username.String
	acct.Phone = phone.String
	acct.Description = description.String
	if birthDate.Valid {
		bd := birthDate.Time
		acct.BirthDate = &bd
	}
	if houseID.Valid {
		h := houseID.Int64
		acct.HouseID = &h
	}
	return &acct, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`,
		strings.TrimSpace(email))
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return acct, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return acct, nil
}

func (s *Store) Insert(ctx context.Context, acct *auth.Account) error {
	if acct == nil || acct.ID == "" {
		return auth.ErrInvalidInput
	}
	if acct.InscriptionDate.IsZero() {
		acct.InscriptionDate = time.Now().UTC()
	}
	var birthDate sql.NullTime
	if acct.BirthDate != nil {
		birthDate = sql.NullTime{Time: *acct.BirthDate, Valid: true}
	}
	var houseID sql.NullInt64
	if acct.HouseID != nil {
		houseID = sql.NullInt64{Int64: *acct.HouseID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (`+userColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		acct.ID, acct.LastName, acct.FirstName, acct.Email, acct.PasswordHash,
		nullIfEmpty(acct.Username), nullIfEmpty(acct.Phone), birthDate,
		acct.InscriptionDate, nullIfEmpty(acct.Description), acct.RoleID, houseID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailInUse
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]auth.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []auth.Profile
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, acct.Profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, upd auth.ProfileUpdate) (*auth.Account, error) {
	var birthDate sql.NullTime
	if upd.BirthDate != nil {
		birthDate = sql.NullTime{Time: *upd.BirthDate, Valid: true}
	}
	var houseID sql.NullInt64
	if upd.HouseID != nil {
		houseID = sql.NullInt64{Int64: *upd.HouseID, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		update users set
			last_name   = coalesce($2, last_name),
			first_name  = coalesce($3, first_name),
			email       = coalesce($4, email),
			username    = coalesce($5, username),
			phone       = coalesce($6, phone),
			birth_date  = coalesce($7, birth_date),
			description = coalesce($8, description),
			house_id    = coalesce($9, house_id)
		where id = $1
		returning `+userColumns,
		id, optional(upd.LastName), optional(upd.FirstName), optional(upd.Email),
		optional(upd.Username), optional(upd.Phone), birthDate,
		optional(upd.Description), houseID,
	)
	acct, err := scanAccount(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, auth.ErrNotFound
	case isUniqueViolation(err):
		return nil, auth.ErrEmailInUse
	case err != nil:
		return nil, fmt.Errorf("update user: %w", err)
	}
	return acct, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `update users set password = $2 where id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func optional(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
