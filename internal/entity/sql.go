package entity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Ref is a plain entity reference with all fields resolved up front.
type Ref struct {
	Type      string
	ID        string
	Owner     string
	Canonical string
}

func (r Ref) EntityTypeID() string { return r.Type }
func (r Ref) EntityID() string     { return r.ID }
func (r Ref) OwnerID() string      { return r.Owner }
func (r Ref) URL() string          { return r.Canonical }

// UserRef is a Ref carrying account fields.
type UserRef struct {
	Ref
	Name  string
	Token string
}

func (u UserRef) DisplayName() string { return u.Name }
func (u UserRef) PushToken() string   { return u.Token }

// SQLLoader resolves entity references against the host application's
// tables. Users come from the users table; other entity types resolve to a
// bare canonical-path reference, which is enough for redirect targets.
type SQLLoader struct {
	db *sql.DB

	// pushTokenColumn names the users column holding the device token.
	pushTokenColumn string
}

func NewSQLLoader(db *sql.DB, pushTokenColumn string) *SQLLoader {
	if pushTokenColumn == "" {
		pushTokenColumn = "push_token"
	}
	return &SQLLoader{db: db, pushTokenColumn: pushTokenColumn}
}

func (l *SQLLoader) Load(ctx context.Context, entityType, id string) (Entity, error) {
	if entityType == "user" {
		return l.LoadUser(ctx, id)
	}
	var owner sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT owner_uid FROM entities WHERE entity_type = $1 AND entity_id = $2`,
		entityType, id,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s/%s not found", entityType, id)
	}
	if err != nil {
		return nil, err
	}
	return Ref{
		Type:      entityType,
		ID:        id,
		Owner:     owner.String,
		Canonical: "/" + entityType + "/" + id,
	}, nil
}

func (l *SQLLoader) LoadUser(ctx context.Context, id string) (User, error) {
	u, err := l.scanUser(l.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, display_name, COALESCE(%s, '') FROM users WHERE id = $1`, pq.QuoteIdentifier(l.pushTokenColumn)),
		id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (l *SQLLoader) LoadUsers(ctx context.Context, ids []string) ([]User, error) {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, display_name, COALESCE(%s, '') FROM users WHERE id = ANY($1)`, pq.QuoteIdentifier(l.pushTokenColumn)),
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := l.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (l *SQLLoader) scanUser(row scanner) (UserRef, error) {
	var u UserRef
	if err := row.Scan(&u.Ref.ID, &u.Name, &u.Token); err != nil {
		return UserRef{}, err
	}
	u.Ref.Type = "user"
	u.Ref.Owner = u.Ref.ID
	u.Ref.Canonical = "/user/" + u.Ref.ID
	return u, nil
}
