package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderStore 分配引擎消费的订单访问接口，事务句柄逐调用传入
type OrderStore interface {
	Candidates(ctx context.Context, tx *gorm.DB, f repository.CandidateFilter, limit, offset int) ([]entity.ProductionOrder, error)
	Get(ctx context.Context, tx *gorm.DB, plantCd, orderNo string) (*entity.ProductionOrder, error)
	ApplyAllocation(ctx context.Context, tx *gorm.DB, snapshot *entity.ProductionOrder, column string, qty float64) (bool, error)
}

// DefectLogStore 不良流水访问接口
type DefectLogStore interface {
	NextDefectNo(ctx context.Context, tx *gorm.DB, defectDate time.Time) (string, error)
	Create(ctx context.Context, tx *gorm.DB, log *entity.DefectLog) error
}

// 分配结果状态
const (
	StatusOK       = "ok"       // 全部申请数量已分配并提交
	StatusExceeded = "exceeded" // 模拟阶段容量不足，未发生任何写入
	StatusChanged  = "changed"  // 提交阶段被并发消耗挤掉，已整体回滚
)

var (
	// ErrDefectNoConflict 不良单号撞唯一键，事务已回滚，调用方可整单重试
	ErrDefectNoConflict = errors.New("不良单号冲突")
	// ErrInvalidRequest 请求字段非法，未开启事务
	ErrInvalidRequest = errors.New("请求参数非法")

	// 事务内部用于触发回滚的信号，结果体从闭包外带出
	errCapacityExceeded = errors.New("容量不足")
	errCapacityChanged  = errors.New("容量被并发消耗")
)

// DistributionRequest 不良数量分配请求
type DistributionRequest struct {
	PlantCd    string
	WorkCenter string
	LineCd     string
	MaterialCd string
	DefectQty  float64
	DefectForm string
	DefectDate time.Time
	MachineCd  string
	Log        DefectLogMeta
}

// DefectLogMeta 透传进不良流水的描述性字段
type DefectLogMeta struct {
	Division       string
	DefectType     string
	DefectDecision string // defect/return，决定累加哪个消耗列
	MoldNo         string
	ObsCd          string
	Creator        string
	CreatePC       string
}

// Validate 引擎侧兜底校验，传输层的 binding 校验先行
func (r *DistributionRequest) Validate() error {
	if r.PlantCd == "" || r.WorkCenter == "" || r.LineCd == "" || r.MaterialCd == "" {
		return fmt.Errorf("%w: 工厂/车间/产线/物料不能为空", ErrInvalidRequest)
	}
	if r.DefectQty <= 0 {
		return fmt.Errorf("%w: 不良数量必须大于0", ErrInvalidRequest)
	}
	if r.DefectDate.IsZero() {
		return fmt.Errorf("%w: 不良日期不能为空", ErrInvalidRequest)
	}
	return nil
}

// Allocation 单笔分配（模拟时为预演，提交时为实际落库值）
type Allocation struct {
	OrderNo     string  `json:"order_no"`
	AppliedQty  float64 `json:"applied_qty"`
	RemainAfter float64 `json:"remain_after"`
}

// DistributionResult 分配结果。exceeded/changed 时 Allocations 是预演计划，
// Logs 为空；ok 时两者都是已提交的事实。
type DistributionResult struct {
	Status         string             `json:"status"`
	TotalRequested float64            `json:"total_requested"`
	TotalCapacity  float64            `json:"total_capacity"`
	TotalApplied   float64            `json:"total_applied"`
	NotAppliedQty  float64            `json:"not_applied_qty"`
	Allocations    []Allocation       `json:"allocations"`
	Logs           []entity.DefectLog `json:"logs,omitempty"`
}

// DistributionService 不良数量分配引擎。先模拟后提交，两阶段共用同一套
// 候选扫描顺序；提交阶段逐行条件更新，落空重读重试一次后跳过该行。
type DistributionService struct {
	orders OrderStore
	logs   DefectLogStore
	db     *gorm.DB
	logger *zap.Logger

	pageSize    int
	stmtTimeout time.Duration
}

func NewDistributionService(orders OrderStore, logs DefectLogStore, db *gorm.DB, logger *zap.Logger) *DistributionService {
	return &DistributionService{
		orders:      orders,
		logs:        logs,
		db:          db,
		logger:      logger,
		pageSize:    200,
		stmtTimeout: 30 * time.Second,
	}
}

// SetPageSize 覆盖候选订单翻页大小
func (s *DistributionService) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// SetStatementTimeout 覆盖事务内语句超时
func (s *DistributionService) SetStatementTimeout(d time.Duration) {
	if d > 0 {
		s.stmtTimeout = d
	}
}

// Distribute 把申请的不良数量分配到候选订单上，全量成功才提交。
// exceeded/changed 不作为 error 返回，体现在结果状态里；
// 单号冲突返回 ErrDefectNoConflict，其余错误原样上抛，事务都已回滚。
func (s *DistributionService) Distribute(ctx context.Context, req *DistributionRequest) (*DistributionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res *DistributionResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bindStatementTimeout(tx); err != nil {
			return err
		}

		sim, err := s.walk(ctx, tx, req, false)
		if err != nil {
			return err
		}
		if sim.totalCapacity < req.DefectQty {
			res = &DistributionResult{
				Status:         StatusExceeded,
				TotalRequested: req.DefectQty,
				TotalCapacity:  sim.totalCapacity,
				NotAppliedQty:  req.DefectQty - sim.totalCapacity,
				Allocations:    sim.allocations,
			}
			return errCapacityExceeded
		}

		com, err := s.walk(ctx, tx, req, true)
		if err != nil {
			return err
		}
		if com.stillNeeded > 0 {
			// 模拟和提交之间容量被并发请求吃掉了，整体回滚
			res = &DistributionResult{
				Status:         StatusChanged,
				TotalRequested: req.DefectQty,
				TotalCapacity:  com.totalCapacity,
				NotAppliedQty:  com.stillNeeded,
				Allocations:    com.allocations,
			}
			return errCapacityChanged
		}

		res = &DistributionResult{
			Status:         StatusOK,
			TotalRequested: req.DefectQty,
			TotalCapacity:  sim.totalCapacity,
			TotalApplied:   req.DefectQty - com.stillNeeded,
			Allocations:    com.allocations,
			Logs:           com.logs,
		}
		return nil
	})

	switch {
	case txErr == nil:
		return res, nil
	case errors.Is(txErr, errCapacityExceeded), errors.Is(txErr, errCapacityChanged):
		s.logger.Info("不良分配未生效",
			zap.String("status", res.Status),
			zap.String("plant_cd", req.PlantCd),
			zap.String("material_cd", req.MaterialCd),
			zap.Float64("requested", req.DefectQty),
			zap.Float64("not_applied", res.NotAppliedQty),
		)
		return res, nil
	case errors.Is(txErr, ErrDefectNoConflict):
		s.logger.Warn("不良单号冲突，事务已回滚",
			zap.String("plant_cd", req.PlantCd),
			zap.Time("defect_date", req.DefectDate),
		)
		return nil, txErr
	default:
		return nil, fmt.Errorf("不良分配失败: %w", txErr)
	}
}

// Simulate 只读预演，不产生任何写入，同样口径返回计划与容量判定
func (s *DistributionService) Simulate(ctx context.Context, req *DistributionRequest) (*DistributionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res *DistributionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.bindStatementTimeout(tx); err != nil {
			return err
		}
		sim, err := s.walk(ctx, tx, req, false)
		if err != nil {
			return err
		}
		status := StatusOK
		notApplied := math.Max(0, req.DefectQty-sim.totalCapacity)
		if notApplied > 0 {
			status = StatusExceeded
		}
		res = &DistributionResult{
			Status:         status,
			TotalRequested: req.DefectQty,
			TotalCapacity:  sim.totalCapacity,
			NotAppliedQty:  notApplied,
			Allocations:    sim.allocations,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("不良分配模拟失败: %w", err)
	}
	return res, nil
}

type walkOutcome struct {
	stillNeeded   float64
	totalCapacity float64
	allocations   []Allocation
	logs          []entity.DefectLog
}

// walk 两阶段共用的候选扫描。commit=false 只累计计划，commit=true 逐行
// 条件更新并写流水。两阶段都按 order_no 升序同一顺序翻页。
func (s *DistributionService) walk(ctx context.Context, tx *gorm.DB, req *DistributionRequest, commit bool) (*walkOutcome, error) {
	filter := repository.CandidateFilter{
		PlantCd:    req.PlantCd,
		WorkCenter: req.WorkCenter,
		LineCd:     req.LineCd,
		MaterialCd: req.MaterialCd,
	}
	column := entity.ConsumedColumn(req.Log.DefectDecision)

	out := &walkOutcome{stillNeeded: req.DefectQty}
	offset := 0
	for out.stillNeeded > 0 {
		page, err := s.orders.Candidates(ctx, tx, filter, s.pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			order := &page[i]
			remain := order.Remaining()
			if remain <= 0 {
				continue
			}
			out.totalCapacity += remain

			if !commit {
				alloc := math.Min(remain, out.stillNeeded)
				out.allocations = append(out.allocations, Allocation{
					OrderNo:     order.OrderNo,
					AppliedQty:  alloc,
					RemainAfter: remain - alloc,
				})
				out.stillNeeded -= alloc
			} else {
				applied, remainAfter, entry, ok, err := s.commitOne(ctx, tx, order, column, out.stillNeeded, req)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				out.allocations = append(out.allocations, Allocation{
					OrderNo:     order.OrderNo,
					AppliedQty:  applied,
					RemainAfter: remainAfter,
				})
				out.logs = append(out.logs, *entry)
				out.stillNeeded -= applied
			}
			if out.stillNeeded <= 0 {
				return out, nil
			}
		}
		offset += s.pageSize
	}
	return out, nil
}

// commitOne 对单个订单执行条件更新。落空则重读一次、按新余量重试一次，
// 再落空或余量耗尽就跳过该订单，由后续候选补足缺口。ok=false 表示跳过。
func (s *DistributionService) commitOne(ctx context.Context, tx *gorm.DB, snapshot *entity.ProductionOrder, column string, stillNeeded float64, req *DistributionRequest) (applied, remainAfter float64, entry *entity.DefectLog, ok bool, err error) {
	remain := snapshot.Remaining()
	alloc := math.Min(remain, stillNeeded)

	updated, err := s.orders.ApplyAllocation(ctx, tx, snapshot, column, alloc)
	if err != nil {
		return 0, 0, nil, false, err
	}
	if !updated {
		fresh, err := s.orders.Get(ctx, tx, snapshot.PlantCd, snapshot.OrderNo)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return 0, 0, nil, false, nil
			}
			return 0, 0, nil, false, err
		}
		remain = fresh.Remaining()
		if remain <= 0 {
			s.logger.Debug("订单余量已被并发耗尽，跳过",
				zap.String("order_no", snapshot.OrderNo))
			return 0, 0, nil, false, nil
		}
		alloc = math.Min(remain, stillNeeded)
		updated, err = s.orders.ApplyAllocation(ctx, tx, fresh, column, alloc)
		if err != nil {
			return 0, 0, nil, false, err
		}
		if !updated {
			// 重试一次仍被抢，放弃该行
			s.logger.Warn("订单连续两次条件更新落空，跳过",
				zap.String("plant_cd", snapshot.PlantCd),
				zap.String("order_no", snapshot.OrderNo))
			return 0, 0, nil, false, nil
		}
	}

	defectNo, err := s.logs.NextDefectNo(ctx, tx, req.DefectDate)
	if err != nil {
		return 0, 0, nil, false, err
	}
	entry = &entity.DefectLog{
		ID:             uuid.New().String()[:32],
		DefectNo:       defectNo,
		PlantCd:        req.PlantCd,
		DefectForm:     req.DefectForm,
		DefectDate:     req.DefectDate,
		WorkCenter:     req.WorkCenter,
		LineCd:         req.LineCd,
		MaterialCd:     req.MaterialCd,
		OrderNo:        snapshot.OrderNo,
		DefectQty:      alloc,
		MachineCd:      req.MachineCd,
		Division:       req.Log.Division,
		DefectType:     req.Log.DefectType,
		DefectDecision: entity.DecisionDefect,
		MoldNo:         req.Log.MoldNo,
		ObsCd:          req.Log.ObsCd,
		Creator:        req.Log.Creator,
		CreatePC:       req.Log.CreatePC,
	}
	if req.Log.DefectDecision == entity.DecisionReturn {
		entry.DefectDecision = entity.DecisionReturn
	}
	if err := s.logs.Create(ctx, tx, entry); err != nil {
		if repository.IsUniqueViolation(err) {
			return 0, 0, nil, false, fmt.Errorf("%w: %s", ErrDefectNoConflict, defectNo)
		}
		return 0, 0, nil, false, fmt.Errorf("写入不良流水失败: %w", err)
	}
	return alloc, remain - alloc, entry, true, nil
}

// bindStatementTimeout 给事务内所有语句加超时上限，限制最坏持锁时间
func (s *DistributionService) bindStatementTimeout(tx *gorm.DB) error {
	return tx.Exec(fmt.Sprintf("SET LOCAL statement_timeout = %d", s.stmtTimeout.Milliseconds())).Error
}
