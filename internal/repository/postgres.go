// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/anikulin/checkout-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCourseNotFound возвращается, если курс отсутствует в каталоге.
	ErrCourseNotFound = errors.New("course not found")
	// ErrPackageNotFound возвращается, если пакет отсутствует в каталоге.
	ErrPackageNotFound = errors.New("package not found")
	// ErrOfferingNotFound возвращается, если коуч-сессия отсутствует в каталоге.
	ErrOfferingNotFound = errors.New("coaching offering not found")
	// ErrTransactionNotFound возвращается, если по session id транзакция не записана.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// База может подниматься вместе с сервисом, поэтому первый ping ретраим.
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только конфликты сериализации и дедлоки.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetCourseBySlug возвращает курс каталога по его slug.
func (r *PostgresRepository) GetCourseBySlug(ctx context.Context, slug string) (*model.Course, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, slug, title, base_price, coaching_price FROM courses WHERE slug = $1`,
		slug,
	)

	var c model.Course
	err := row.Scan(&c.ID, &c.Slug, &c.Title, &c.BasePrice, &c.CoachingPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, slug)
		}
		return nil, fmt.Errorf("get course: %w", err)
	}

	return &c, nil
}

// GetPackageByID возвращает пакет курсов вместе со списком входящих курсов.
func (r *PostgresRepository) GetPackageByID(ctx context.Context, id int64) (*model.Package, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, base_price, coaching_price FROM packages WHERE id = $1`,
		id,
	)

	var p model.Package
	err := row.Scan(&p.ID, &p.Title, &p.BasePrice, &p.CoachingPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrPackageNotFound, id)
		}
		return nil, fmt.Errorf("get package: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT course_id FROM package_courses WHERE package_id = $1 ORDER BY course_id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select package courses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var courseID int64
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("scan package course: %w", err)
		}
		p.CourseIDs = append(p.CourseIDs, courseID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &p, nil
}

// GetCoachingOfferingByID возвращает коуч-сессию каталога по идентификатору.
func (r *PostgresRepository) GetCoachingOfferingByID(ctx context.Context, id int64) (*model.CoachingOffering, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, duration_minutes, price FROM coaching_offerings WHERE id = $1`,
		id,
	)

	var o model.CoachingOffering
	err := row.Scan(&o.ID, &o.Name, &o.DurationMinutes, &o.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrOfferingNotFound, id)
		}
		return nil, fmt.Errorf("get coaching offering: %w", err)
	}

	return &o, nil
}

// GetTransactionBySessionID возвращает транзакцию по идентификатору платёжной сессии.
func (r *PostgresRepository) GetTransactionBySessionID(ctx context.Context, sessionID string) (*model.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, session_id, user_id, purchase_type, items, amount, currency, status, metadata, processed_at, customer_email
		 FROM transactions
		 WHERE session_id = $1`,
		sessionID,
	)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	return txn, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	var status string

	err := row.Scan(
		&t.ID, &t.SessionID, &t.UserID, &t.PurchaseType, &t.Items,
		&t.Amount, &t.Currency, &status, &t.Metadata, &t.ProcessedAt, &t.CustomerEmail,
	)
	if err != nil {
		return nil, err
	}

	t.Status = model.TransactionStatus(status)
	if t.Items == nil {
		t.Items = []model.LineItem{}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}

	return &t, nil
}

// RecordUnlock атомарно записывает транзакцию и выдаёт пользователю доступы:
// зачисления на курсы и коуч-кредиты. Уникальный индекс по session_id
// гарантирует не более одной записи на платёжную сессию: проигравший гонку
// вызов получает уже записанную транзакцию и признак повторной обработки.
func (r *PostgresRepository) RecordUnlock(ctx context.Context, txn *model.Transaction, courseIDs []int64, credits int64) (*model.Transaction, bool, error) {
	var recorded *model.Transaction
	var alreadyProcessed bool

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`INSERT INTO transactions (id, session_id, user_id, purchase_type, items, amount, currency, status, metadata, processed_at, customer_email)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (session_id) DO NOTHING`,
			txn.ID, txn.SessionID, txn.UserID, txn.PurchaseType, txn.Items,
			txn.Amount, txn.Currency, string(txn.Status), txn.Metadata, txn.ProcessedAt, txn.CustomerEmail,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			row := tx.QueryRow(ctx,
				`SELECT id, session_id, user_id, purchase_type, items, amount, currency, status, metadata, processed_at, customer_email
				 FROM transactions
				 WHERE session_id = $1`,
				txn.SessionID,
			)
			existing, err := scanTransaction(row)
			if err != nil {
				return fmt.Errorf("select existing transaction: %w", err)
			}

			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit tx: %w", err)
			}

			recorded = existing
			alreadyProcessed = true
			return nil
		}

		for _, courseID := range courseIDs {
			_, err = tx.Exec(ctx,
				`INSERT INTO enrollments (user_id, course_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				txn.UserID, courseID,
			)
			if err != nil {
				return fmt.Errorf("insert enrollment: %w", err)
			}
		}

		if credits > 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO coaching_credits (user_id, credits) VALUES ($1, $2)
				 ON CONFLICT (user_id) DO UPDATE SET credits = coaching_credits.credits + EXCLUDED.credits`,
				txn.UserID, credits,
			)
			if err != nil {
				return fmt.Errorf("upsert coaching credits: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		recorded = txn
		alreadyProcessed = false
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return recorded, alreadyProcessed, nil
}

// GetEnrollments возвращает идентификаторы курсов, открытых пользователю.
func (r *PostgresRepository) GetEnrollments(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT course_id FROM enrollments WHERE user_id = $1 ORDER BY course_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select enrollments: %w", err)
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var courseID int64
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		res = append(res, courseID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetCoachingCredits возвращает баланс коуч-кредитов пользователя.
func (r *PostgresRepository) GetCoachingCredits(ctx context.Context, userID int64) (int64, error) {
	var credits int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(credits), 0) FROM coaching_credits WHERE user_id = $1`,
		userID,
	).Scan(&credits)
	if err != nil {
		return 0, fmt.Errorf("sum coaching credits: %w", err)
	}

	return credits, nil
}
