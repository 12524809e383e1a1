package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/eventlog"
	"schoollib/internal/store"
	"schoollib/internal/validation"
)

var userColumns = []any{"id", "username", "email", "full_name", "role", "class_name", "phone", "active", "created_at", "updated_at"}

// service implements the Service interface.
type service struct {
	db          *sqlx.DB
	events      *eventlog.Log
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService creates the account store. limiter throttles Register and
// Authenticate across the whole process.
func NewService(db *sqlx.DB, events *eventlog.Log, limiter *rate.Limiter, logger *slog.Logger) Service {
	return &service{
		db:          db,
		events:      events,
		rateLimiter: limiter,
		logger:      logger,
		tracer:      otel.Tracer("schoollib/membership"),
		now:         time.Now,
	}
}

func (s *service) Register(ctx context.Context, candidate NewUser) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.ErrRateLimited
	}
	return s.CreateUser(ctx, candidate)
}

// CreateUser validates, hashes and persists a new account together with
// its credential row.
func (s *service) CreateUser(ctx context.Context, candidate NewUser) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "membership.create_user")
	defer span.End()

	candidate.Username = strings.TrimSpace(candidate.Username)
	candidate.Email = strings.TrimSpace(candidate.Email)
	candidate.FullName = strings.TrimSpace(candidate.FullName)
	if err := validation.Struct(candidate); err != nil {
		return nil, err
	}

	taken, err := s.Exists(ctx, candidate.Username, candidate.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("Username or email already registered")
	}

	passwordHash, salt, err := hashPassword(candidate.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:        uuid.New(),
		Username:  candidate.Username,
		Email:     candidate.Email,
		FullName:  candidate.FullName,
		Role:      candidate.Role,
		ClassName: candidate.ClassName,
		Phone:     candidate.Phone,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()), attribute.String("user.role", string(user.Role)))

	err = store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (id, username, email, full_name, role, class_name, phone, active, created_at, updated_at)
			VALUES (:id, :username, :email, :full_name, :role, :class_name, :phone, :active, :created_at, :updated_at)
		`, user)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (user_id, password_hash, salt) VALUES ($1, $2, $3)
		`, user.ID, passwordHash, salt)
		if err != nil {
			return err
		}
		return s.events.Append(ctx, tx, user.ID, eventlog.AggregateUser, "UserRegistered", UserRegisteredEvent{
			ID:       user.ID,
			Username: user.Username,
			Role:     user.Role,
		})
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Username or email already registered")
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return user, nil
}

func (s *service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.ErrRateLimited
	}
	ctx, span := s.tracer.Start(ctx, "membership.authenticate")
	defer span.End()

	badCredentials := apperr.Unauthorized("Incorrect username or password")

	user, err := s.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, badCredentials
		}
		return nil, err
	}

	var cred Credential
	err = s.db.GetContext(ctx, &cred, `SELECT user_id, password_hash, salt FROM credentials WHERE user_id = $1`, user.ID)
	if err != nil {
		if store.IsNoRows(err) {
			return nil, badCredentials
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	ok, err := verifyPassword(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.InfoContext(ctx, "login rejected", "username", user.Username)
		return nil, badCredentials
	}
	if !user.Active {
		return nil, apperr.Validation("Inactive user")
	}
	return user, nil
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.getBy(ctx, goqu.C("id").Eq(id.String()))
}

func (s *service) GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	out := make(map[uuid.UUID]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	users := []User{}
	ds := store.Dialect.From("users").Select(userColumns...).Where(goqu.C("id").In(keys))
	if err := store.Select(ctx, s.db, ds, &users); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *service) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.getBy(ctx, goqu.C("username").Eq(username))
}

func (s *service) getBy(ctx context.Context, cond goqu.Expression) (*User, error) {
	ds := store.Dialect.From("users").Select(userColumns...).Where(cond)
	user := &User{}
	if err := store.Get(ctx, s.db, ds, user); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *service) LoadPrincipal(ctx context.Context, id uuid.UUID) (auth.Principal, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return auth.Principal{}, err
	}
	if !user.Active {
		return auth.Principal{}, apperr.Unauthorized("Inactive user")
	}
	return auth.Principal{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// ListUsers returns accounts ordered by username.
func (s *service) ListUsers(ctx context.Context, f Filter) ([]User, error) {
	ctx, span := s.tracer.Start(ctx, "membership.list_users")
	defer span.End()

	users := []User{}
	if err := store.Select(ctx, s.db, listQuery(f), &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

func listQuery(f Filter) *goqu.SelectDataset {
	ds := store.Dialect.From("users").Select(userColumns...).Order(goqu.C("username").Asc())
	if f.Role != nil {
		ds = ds.Where(goqu.C("role").Eq(string(*f.Role)))
	}
	if f.ClassName != nil {
		ds = ds.Where(goqu.C("class_name").Eq(*f.ClassName))
	}
	if f.Search != nil && *f.Search != "" {
		pattern := store.Contains(*f.Search)
		ds = ds.Where(goqu.Or(
			goqu.C("full_name").ILike(pattern),
			goqu.C("email").ILike(pattern),
			goqu.C("username").ILike(pattern),
		))
	}
	return f.Page.Apply(ds)
}

// UpdateUser applies a partial change. Username and email stay unique.
func (s *service) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "membership.update_user", trace.WithAttributes(attribute.String("user.id", id.String())))
	defer span.End()

	if err := validation.Struct(upd); err != nil {
		return nil, err
	}

	var updated User
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var current User
		ds := store.Dialect.From("users").Select(userColumns...).Where(goqu.C("id").Eq(id.String())).ForUpdate(goqu.Wait)
		if err := store.Get(ctx, tx, ds, &current); err != nil {
			if store.IsNoRows(err) {
				return apperr.NotFound("User not found")
			}
			return err
		}

		rec, fields := updateRecord(upd)
		if upd.Username != nil && *upd.Username != current.Username {
			if err := s.ensureFree(ctx, tx, "username", *upd.Username, id, "Username already exists"); err != nil {
				return err
			}
		}
		if upd.Email != nil && *upd.Email != current.Email {
			if err := s.ensureFree(ctx, tx, "email", *upd.Email, id, "Email already exists"); err != nil {
				return err
			}
		}

		updated = current
		if len(rec) > 0 {
			rec["updated_at"] = s.now().UTC()
			query, args, err := store.Dialect.Update("users").
				Set(rec).
				Where(goqu.C("id").Eq(id.String())).
				Returning(userColumns...).
				Prepared(true).ToSQL()
			if err != nil {
				return fmt.Errorf("build update: %w", err)
			}
			if err := tx.QueryRowxContext(ctx, query, args...).StructScan(&updated); err != nil {
				return err
			}
		}

		if upd.Password != nil {
			passwordHash, salt, err := hashPassword(*upd.Password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE credentials SET password_hash = $1, salt = $2, updated_at = NOW() WHERE user_id = $3
			`, passwordHash, salt, id)
			if err != nil {
				return err
			}
			fields = append(fields, "password")
		}

		if len(fields) == 0 {
			return nil
		}
		return s.events.Append(ctx, tx, id, eventlog.AggregateUser, "UserUpdated", UserUpdatedEvent{ID: id, Fields: fields})
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Username or email already exists")
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &updated, nil
}

func updateRecord(upd UserUpdate) (goqu.Record, []string) {
	rec := goqu.Record{}
	var fields []string
	set := func(col string, v any) {
		rec[col] = v
		fields = append(fields, col)
	}
	if upd.Username != nil {
		set("username", strings.TrimSpace(*upd.Username))
	}
	if upd.Email != nil {
		set("email", strings.TrimSpace(*upd.Email))
	}
	if upd.FullName != nil {
		set("full_name", strings.TrimSpace(*upd.FullName))
	}
	if upd.Role != nil {
		set("role", string(*upd.Role))
	}
	if upd.ClassName != nil {
		set("class_name", *upd.ClassName)
	}
	if upd.Phone != nil {
		set("phone", *upd.Phone)
	}
	if upd.Active != nil {
		set("active", *upd.Active)
	}
	return rec, fields
}

func (s *service) ensureFree(ctx context.Context, tx *sqlx.Tx, column, value string, self uuid.UUID, msg string) error {
	query, args, err := store.Dialect.From("users").
		Select(goqu.L("1")).
		Where(goqu.C(column).Eq(value), goqu.C("id").Neq(self.String())).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build uniqueness check: %w", err)
	}
	var taken bool
	if err := tx.GetContext(ctx, &taken, "SELECT EXISTS("+query+")", args...); err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("%s", msg)
	}
	return nil
}

// DeleteUser removes an account that holds no borrowed or overdue loan.
// Past loans keep referencing the id.
func (s *service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "membership.delete_user", trace.WithAttributes(attribute.String("user.id", id.String())))
	defer span.End()

	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var username string
		err := tx.GetContext(ctx, &username, `SELECT username FROM users WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if store.IsNoRows(err) {
				return apperr.NotFound("User not found")
			}
			return err
		}

		var active int
		err = tx.GetContext(ctx, &active, `
			SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status IN ('borrowed', 'overdue')
		`, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict("Cannot delete user with active loans")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, id, eventlog.AggregateUser, "UserDeleted", UserDeletedEvent{ID: id, Username: username})
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id)
	return nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := s.tracer.Start(ctx, "membership.stats")
	defer span.End()

	var rows []struct {
		Role   string `db:"role"`
		Total  int    `db:"total"`
		Active int    `db:"active"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT role, COUNT(*) AS total, COUNT(*) FILTER (WHERE active) AS active
		FROM users
		GROUP BY role
	`)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	stats := &Stats{UsersByRole: map[string]int{}}
	for _, r := range rows {
		stats.TotalUsers += r.Total
		stats.ActiveUsers += r.Active
		stats.UsersByRole[r.Role] = r.Total
	}
	return stats, nil
}

// BulkCreate creates each candidate independently. A failing item is
// reported against its 1-based position and never stops the batch.
func (s *service) BulkCreate(ctx context.Context, candidates []NewUser) (*BulkResult, error) {
	res := &BulkResult{Errors: []RowError{}}
	for i, c := range candidates {
		row := i + 1
		if err := validation.Struct(c); err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Error: apperr.Message(err, err.Error())})
			continue
		}
		taken, err := s.Exists(ctx, strings.TrimSpace(c.Username), strings.TrimSpace(c.Email))
		if err != nil {
			return nil, err
		}
		if taken {
			res.Duplicates++
			res.Errors = append(res.Errors, RowError{Row: row, Error: fmt.Sprintf("User %s already exists", c.Username)})
			continue
		}
		if _, err := s.CreateUser(ctx, c); err != nil {
			if apperr.Is(err, apperr.ErrConflict) {
				res.Duplicates++
				res.Errors = append(res.Errors, RowError{Row: row, Error: fmt.Sprintf("User %s already exists", c.Username)})
				continue
			}
			s.logger.WarnContext(ctx, "bulk user row failed", "row", row, "error", err)
			res.Errors = append(res.Errors, RowError{Row: row, Error: apperr.Message(err, "Unexpected error: "+err.Error())})
			continue
		}
		res.Created++
	}
	return res, nil
}

func (s *service) Exists(ctx context.Context, username, email string) (bool, error) {
	var taken bool
	err := s.db.GetContext(ctx, &taken, `
		SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)
	`, username, email)
	if err != nil {
		return false, fmt.Errorf("check existing user: %w", err)
	}
	return taken, nil
}
