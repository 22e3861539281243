package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// IsUniqueViolation 判断是否为唯一键冲突（postgres 23505）
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Repositories MES仓库集合
type Repositories struct {
	Order     *OrderRepository
	DefectLog *DefectLogRepository
	RefData   *RefDataRepository
}

// NewRepositories 创建MES仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:     NewOrderRepository(db),
		DefectLog: NewDefectLogRepository(db),
		RefData:   NewRefDataRepository(db),
	}
}
