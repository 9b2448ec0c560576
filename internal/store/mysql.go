package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/spigell/hh-market/internal/market"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// MySQL is the gorm backed Store.
type MySQL struct {
	db     *gorm.DB
	logger *zap.Logger
}

func OpenMySQL(dsn string, debug bool, logger *zap.Logger) (*MySQL, error) {
	if dsn == "" {
		return nil, errors.New("mysql dsn is required")
	}

	dsn, err := foundRowsDSN(dsn)
	if err != nil {
		return nil, err
	}

	level := gormlogger.Silent
	if debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return &MySQL{db: db, logger: logger}, nil
}

// foundRowsDSN makes UPDATE report matched rows instead of changed rows, so
// writing unchanged values is not mistaken for a missing row.
func foundRowsDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// NewMySQL wraps an already opened gorm connection.
func NewMySQL(db *gorm.DB, logger *zap.Logger) *MySQL {
	return &MySQL{db: db, logger: logger}
}

// Migrate creates or updates the schema.
func (s *MySQL) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&market.User{},
		&market.Resume{},
		&market.Job{},
		&market.Valuation{},
		&market.RecruitResume{},
		&market.DrawHistory{},
		&market.PointPackage{},
		&market.TransactionHistory{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	s.logger.Info("database schema migrated")
	return nil
}

// SeedPointPackages inserts the given packages when the table is empty.
func (s *MySQL) SeedPointPackages(ctx context.Context, packages []market.PointPackage) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&market.PointPackage{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count point packages: %w", err)
	}

	if count > 0 || len(packages) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Create(&packages).Error; err != nil {
		return fmt.Errorf("seed point packages: %w", err)
	}

	s.logger.Info("seeded point packages", zap.Int("count", len(packages)))
	return nil
}

func (s *MySQL) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&mysqlTx{db: db})
	})

	return translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
	}

	return err
}

type mysqlTx struct {
	db *gorm.DB
}

func (t *mysqlTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *mysqlTx) User(id uint) (*market.User, error) {
	var u market.User
	if err := t.forUpdate().First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (t *mysqlTx) CreateUser(u *market.User) error {
	return translate(t.db.Create(u).Error)
}

func (t *mysqlTx) SaveUserPoints(u *market.User) error {
	res := t.db.Model(&market.User{}).Where("id = ?", u.ID).Updates(map[string]any{
		"point":          u.Point,
		"warranty_point": u.WarrantyPoint,
		"updated_at":     time.Now(),
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mysqlTx) Resume(id uint) (*market.Resume, error) {
	var r market.Resume
	if err := t.db.First(&r, id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *mysqlTx) CreateResume(r *market.Resume) error {
	return translate(t.db.Create(r).Error)
}

func (t *mysqlTx) SetResumeStatus(id uint, status market.ResumeStatus) error {
	res := t.db.Model(&market.Resume{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mysqlTx) Job(id uint) (*market.Job, error) {
	var j market.Job
	if err := t.db.First(&j, id).Error; err != nil {
		return nil, translate(err)
	}
	return &j, nil
}

func (t *mysqlTx) CreateJob(j *market.Job) error {
	return translate(t.db.Create(j).Error)
}

func (t *mysqlTx) Valuation(resumeID uint) (*market.Valuation, error) {
	var v market.Valuation
	if err := t.forUpdate().Where("resume_id = ?", resumeID).Order("updated_at DESC").First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (t *mysqlTx) SaveValuation(v *market.Valuation) error {
	if v.ID != 0 {
		return translate(t.db.Save(v).Error)
	}

	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resume_id"}},
		UpdateAll: true,
	}).Create(v).Error
	return translate(err)
}

func (t *mysqlTx) RecruitResume(id uint) (*market.RecruitResume, error) {
	var r market.RecruitResume
	if err := t.forUpdate().First(&r, id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *mysqlTx) CreateRecruitResume(r *market.RecruitResume) error {
	return translate(t.db.Create(r).Error)
}

func (t *mysqlTx) SaveRecruitResume(r *market.RecruitResume) error {
	return translate(t.db.Save(r).Error)
}

func (t *mysqlTx) PendingWarranties(day time.Time) ([]uint, error) {
	var ids []uint
	err := t.db.Model(&market.RecruitResume{}).
		Where("warranty_state = ?", market.WarrantyActive).
		Where("(last_warranty_tick IS NULL OR last_warranty_tick < ?)", Day(day)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (t *mysqlTx) CreateDraw(d *market.DrawHistory) error {
	return translate(t.db.Create(d).Error)
}

func (t *mysqlTx) Draws(collaboratorID uint) ([]market.DrawHistory, error) {
	var draws []market.DrawHistory
	if err := t.db.Where("collaborator_id = ?", collaboratorID).Order("id").Find(&draws).Error; err != nil {
		return nil, translate(err)
	}
	return draws, nil
}

func (t *mysqlTx) PointPackage(id uint) (*market.PointPackage, error) {
	var p market.PointPackage
	if err := t.db.First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *mysqlTx) CreatePointPackage(p *market.PointPackage) error {
	return translate(t.db.Create(p).Error)
}

func (t *mysqlTx) TransactionByReference(ref string) (*market.TransactionHistory, error) {
	var th market.TransactionHistory
	if err := t.db.Where("payment_reference = ?", ref).First(&th).Error; err != nil {
		return nil, translate(err)
	}
	return &th, nil
}

func (t *mysqlTx) CreateTransaction(th *market.TransactionHistory) error {
	return translate(t.db.Create(th).Error)
}

func (t *mysqlTx) Transactions(userID uint) ([]market.TransactionHistory, error) {
	var history []market.TransactionHistory
	if err := t.db.Where("user_id = ?", userID).Order("id").Find(&history).Error; err != nil {
		return nil, translate(err)
	}
	return history, nil
}

// DefaultPointPackages are seeded on a fresh database.
func DefaultPointPackages() []market.PointPackage {
	return []market.PointPackage{
		{Point: decimal.NewFromInt(10), Price: decimal.NewFromInt(1000000), Currency: "VND"},
		{Point: decimal.NewFromInt(50), Price: decimal.NewFromInt(4500000), Currency: "VND"},
		{Point: decimal.NewFromInt(100), Price: decimal.NewFromInt(8500000), Currency: "VND"},
	}
}
