package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDistributionTest(t *testing.T) (*gorm.DB, *repository.Repositories, *DistributionService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewDistributionService(repos.Order, repos.DefectLog, db, zap.NewNop())
	return db, repos, svc
}

func testRequest(qty float64) *DistributionRequest {
	return &DistributionRequest{
		PlantCd:    "P100",
		WorkCenter: "WC01",
		LineCd:     "L01",
		MaterialCd: "MAT-TEST-001",
		DefectQty:  qty,
		DefectForm: "F01",
		DefectDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		MachineCd:  "MC-07",
		Log: DefectLogMeta{
			Division:       "molding",
			DefectType:     "scratch",
			DefectDecision: entity.DecisionDefect,
			Creator:        "test-user",
			CreatePC:       "test-pc",
		},
	}
}

func getOrder(t *testing.T, db *gorm.DB, orderNo string) *entity.ProductionOrder {
	t.Helper()
	var order entity.ProductionOrder
	if err := db.Where("plant_cd = ? AND order_no = ?", "P100", orderNo).First(&order).Error; err != nil {
		t.Fatalf("Failed to load order %s: %v", orderNo, err)
	}
	return &order
}

func countLogs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&entity.DefectLog{}).Count(&n).Error; err != nil {
		t.Fatalf("Failed to count defect logs: %v", err)
	}
	return n
}

// TestDistributeSingleOrder covers the plain path: one order with enough
// remaining capacity absorbs the whole requested quantity.
func TestDistributeSingleOrder(t *testing.T) {
	db, _, svc := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 40) // remaining 60

	result, err := svc.Distribute(context.Background(), testRequest(50))
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected status ok, got %s", result.Status)
	}
	if result.TotalApplied != 50 {
		t.Fatalf("expected total_applied 50, got %v", result.TotalApplied)
	}
	if len(result.Allocations) != 1 || result.Allocations[0].OrderNo != "ORD-001" || result.Allocations[0].AppliedQty != 50 {
		t.Fatalf("unexpected allocations: %+v", result.Allocations)
	}
	if result.Allocations[0].RemainAfter != 10 {
		t.Fatalf("expected remain_after 10, got %v", result.Allocations[0].RemainAfter)
	}

	order := getOrder(t, db, "ORD-001")
	if order.DefectQty != 50 {
		t.Fatalf("expected defect_qty 50, got %v", order.DefectQty)
	}
	if order.Remaining() != 10 {
		t.Fatalf("expected remaining 10, got %v", order.Remaining())
	}
	if n := countLogs(t, db); n != 1 {
		t.Fatalf("expected 1 defect log, got %d", n)
	}
	if len(result.Logs) != 1 || result.Logs[0].DefectQty != 50 {
		t.Fatalf("unexpected logs in result: %+v", result.Logs)
	}
	if result.Logs[0].DefectNo == "" {
		t.Fatal("expected generated defect_no in log")
	}
}

// TestDistributeExceeded covers the capacity verdict: aggregate remaining
// below the requested quantity rejects the request without any write.
func TestDistributeExceeded(t *testing.T) {
	db, _, svc := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 70) // remaining 30
	testutil.SeedOrder(t, db, "ORD-002", 50, 30)  // remaining 20

	result, err := svc.Distribute(context.Background(), testRequest(60))
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if result.Status != StatusExceeded {
		t.Fatalf("expected status exceeded, got %s", result.Status)
	}
	if result.TotalCapacity != 50 {
		t.Fatalf("expected total_capacity 50, got %v", result.TotalCapacity)
	}
	if result.NotAppliedQty != 10 {
		t.Fatalf("expected not_applied 10, got %v", result.NotAppliedQty)
	}
	if len(result.Allocations) != 2 {
		t.Fatalf("expected advisory plan with 2 entries, got %+v", result.Allocations)
	}

	// 未发生任何写入
	if o := getOrder(t, db, "ORD-001"); o.DefectQty != 0 {
		t.Fatalf("order ORD-001 mutated on exceeded: %+v", o)
	}
	if o := getOrder(t, db, "ORD-002"); o.DefectQty != 0 {
		t.Fatalf("order ORD-002 mutated on exceeded: %+v", o)
	}
	if n := countLogs(t, db); n != 0 {
		t.Fatalf("expected no defect logs, got %d", n)
	}
}

// TestDistributeSpansOrders checks conservation across multiple orders:
// allocations sum to the requested quantity in scan order.
func TestDistributeSpansOrders(t *testing.T) {
	db, _, svc := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 70) // remaining 30
	testutil.SeedOrder(t, db, "ORD-002", 50, 30)  // remaining 20
	testutil.SeedOrder(t, db, "ORD-003", 40, 0)   // remaining 40

	result, err := svc.Distribute(context.Background(), testRequest(60))
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected status ok, got %s", result.Status)
	}

	var sum float64
	for _, a := range result.Allocations {
		sum += a.AppliedQty
	}
	if sum != 60 {
		t.Fatalf("allocations must sum to requested 60, got %v", sum)
	}
	// order_no 升序吸收：30 + 20 + 10
	want := []struct {
		orderNo string
		qty     float64
	}{{"ORD-001", 30}, {"ORD-002", 20}, {"ORD-003", 10}}
	if len(result.Allocations) != len(want) {
		t.Fatalf("expected 3 allocations, got %+v", result.Allocations)
	}
	for i, w := range want {
		if result.Allocations[i].OrderNo != w.orderNo || result.Allocations[i].AppliedQty != w.qty {
			t.Fatalf("allocation %d: expected %+v, got %+v", i, w, result.Allocations[i])
		}
	}
	if o := getOrder(t, db, "ORD-003"); o.DefectQty != 10 || o.Remaining() != 30 {
		t.Fatalf("unexpected ORD-003 state: %+v", o)
	}
	if n := countLogs(t, db); n != 3 {
		t.Fatalf("expected 3 defect logs, got %d", n)
	}
}

// TestDistributeReturnDecision verifies the return decision targets the
// return_qty column instead of defect_qty.
func TestDistributeReturnDecision(t *testing.T) {
	db, _, svc := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 40)

	req := testRequest(25)
	req.Log.DefectDecision = entity.DecisionReturn
	result, err := svc.Distribute(context.Background(), req)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected status ok, got %s", result.Status)
	}

	order := getOrder(t, db, "ORD-001")
	if order.ReturnQty != 25 || order.DefectQty != 0 {
		t.Fatalf("expected return_qty 25 / defect_qty 0, got %+v", order)
	}
	if result.Logs[0].DefectDecision != entity.DecisionReturn {
		t.Fatalf("expected decision return on log, got %s", result.Logs[0].DefectDecision)
	}
}

// TestSimulateIdempotent runs simulate twice with no intervening mutation
// and expects identical verdicts and plans.
func TestSimulateIdempotent(t *testing.T) {
	db, _, svc := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 70)
	testutil.SeedOrder(t, db, "ORD-002", 50, 30)

	first, err := svc.Simulate(context.Background(), testRequest(60))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	second, err := svc.Simulate(context.Background(), testRequest(60))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if first.Status != StatusExceeded || second.Status != first.Status {
		t.Fatalf("expected both exceeded, got %s / %s", first.Status, second.Status)
	}
	if first.TotalCapacity != second.TotalCapacity || first.NotAppliedQty != second.NotAppliedQty {
		t.Fatalf("verdicts differ: %+v vs %+v", first, second)
	}
	if len(first.Allocations) != len(second.Allocations) {
		t.Fatalf("plans differ in length: %d vs %d", len(first.Allocations), len(second.Allocations))
	}
	for i := range first.Allocations {
		if first.Allocations[i] != second.Allocations[i] {
			t.Fatalf("plan entry %d differs: %+v vs %+v", i, first.Allocations[i], second.Allocations[i])
		}
	}
	if n := countLogs(t, db); n != 0 {
		t.Fatalf("simulate must not write, got %d logs", n)
	}
}

// TestExhaustedOrdersSkipped ensures orders with remaining <= 0 never show
// up in a plan.
func TestExhaustedOrdersSkipped(t *testing.T) {
	db, _, svc := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 100) // remaining 0
	testutil.SeedOrder(t, db, "ORD-002", 50, 20)   // remaining 30

	result, err := svc.Simulate(context.Background(), testRequest(10))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected ok, got %s", result.Status)
	}
	if len(result.Allocations) != 1 || result.Allocations[0].OrderNo != "ORD-002" {
		t.Fatalf("exhausted order must be skipped, got %+v", result.Allocations)
	}
}

// staleOrderStore serves the commit phase the snapshots cached during
// simulation while the underlying row changes in between, forcing the
// conditional update to miss exactly like a concurrent distribution would.
type staleOrderStore struct {
	inner  *repository.OrderRepository
	db     *gorm.DB
	mutate func(db *gorm.DB)

	mu     sync.Mutex
	calls  int
	cached []entity.ProductionOrder
}

func (s *staleOrderStore) Candidates(ctx context.Context, tx *gorm.DB, f repository.CandidateFilter, limit, offset int) ([]entity.ProductionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls == 1 {
		page, err := s.inner.Candidates(ctx, tx, f, limit, offset)
		if err != nil {
			return nil, err
		}
		s.cached = page
		return page, nil
	}
	if s.calls == 2 {
		// 提交阶段开始前，另一条连接吃掉了部分容量
		if s.mutate != nil {
			s.mutate(s.db)
			s.mutate = nil
		}
		return s.cached, nil
	}
	return s.inner.Candidates(ctx, tx, f, limit, offset)
}

func (s *staleOrderStore) Get(ctx context.Context, tx *gorm.DB, plantCd, orderNo string) (*entity.ProductionOrder, error) {
	return s.inner.Get(ctx, tx, plantCd, orderNo)
}

func (s *staleOrderStore) ApplyAllocation(ctx context.Context, tx *gorm.DB, snapshot *entity.ProductionOrder, column string, qty float64) (bool, error) {
	return s.inner.ApplyAllocation(ctx, tx, snapshot, column, qty)
}

// TestDistributeChangedOnContention interleaves a competing consumption
// between simulation and commit: the conditional update misses, the
// single retry only recovers part of the quantity, and the whole attempt
// rolls back with status changed.
func TestDistributeChangedOnContention(t *testing.T) {
	db, repos, _ := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 50) // remaining 50

	store := &staleOrderStore{
		inner: repos.Order,
		db:    db,
		mutate: func(db *gorm.DB) {
			// 并发请求把好品数提走40，剩余只剩10
			db.Exec("UPDATE mes_production_orders SET good_qty = good_qty + 40 WHERE plant_cd = 'P100' AND order_no = 'ORD-001'")
		},
	}
	svc := NewDistributionService(store, repos.DefectLog, db, zap.NewNop())

	result, err := svc.Distribute(context.Background(), testRequest(40))
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if result.Status != StatusChanged {
		t.Fatalf("expected status changed, got %s", result.Status)
	}
	// 重试一次按新余量只补到10，缺口30
	if result.NotAppliedQty != 30 {
		t.Fatalf("expected not_applied 30, got %v", result.NotAppliedQty)
	}
	if len(result.Allocations) != 1 || result.Allocations[0].AppliedQty != 10 {
		t.Fatalf("expected single retried allocation of 10, got %+v", result.Allocations)
	}

	// 整体回滚：引擎的10不落库，带外的40保留
	order := getOrder(t, db, "ORD-001")
	if order.DefectQty != 0 {
		t.Fatalf("rollback must undo engine writes, defect_qty=%v", order.DefectQty)
	}
	if order.GoodQty != 90 {
		t.Fatalf("out-of-band write must survive, good_qty=%v", order.GoodQty)
	}
	if n := countLogs(t, db); n != 0 {
		t.Fatalf("expected no surviving defect logs, got %d", n)
	}
}

// fixedNoLogStore returns a pre-arranged defect_no so the insert collides
// with an existing row.
type fixedNoLogStore struct {
	inner    *repository.DefectLogRepository
	defectNo string
}

func (s *fixedNoLogStore) NextDefectNo(ctx context.Context, tx *gorm.DB, defectDate time.Time) (string, error) {
	return s.defectNo, nil
}

func (s *fixedNoLogStore) Create(ctx context.Context, tx *gorm.DB, log *entity.DefectLog) error {
	return s.inner.Create(ctx, tx, log)
}

// TestDistributeDefectNoConflict forces a unique-key collision on the
// generated defect_no and expects the dedicated conflict error plus a full
// rollback.
func TestDistributeDefectNoConflict(t *testing.T) {
	db, repos, _ := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 40)

	existing := &entity.DefectLog{
		ID:         "existing-log-0001",
		DefectNo:   "DF20260310-0001",
		PlantCd:    "P100",
		DefectForm: "F01",
		DefectDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		WorkCenter: "WC01",
		LineCd:     "L01",
		MaterialCd: "MAT-TEST-001",
		OrderNo:    "ORD-000",
		DefectQty:  1,
	}
	if err := db.Create(existing).Error; err != nil {
		t.Fatalf("Failed to seed existing log: %v", err)
	}

	store := &fixedNoLogStore{inner: repos.DefectLog, defectNo: "DF20260310-0001"}
	svc := NewDistributionService(repos.Order, store, db, zap.NewNop())

	_, err := svc.Distribute(context.Background(), testRequest(10))
	if !errors.Is(err, ErrDefectNoConflict) {
		t.Fatalf("expected ErrDefectNoConflict, got %v", err)
	}

	if o := getOrder(t, db, "ORD-001"); o.DefectQty != 0 {
		t.Fatalf("conflict must roll back order mutation, defect_qty=%v", o.DefectQty)
	}
	if n := countLogs(t, db); n != 1 {
		t.Fatalf("only the pre-existing log may survive, got %d", n)
	}
}

// TestDistributeConcurrent races two full distributions over one order:
// exactly one may succeed, the loser reports a shortfall without leaving
// any partial writes behind.
func TestDistributeConcurrent(t *testing.T) {
	db, repos, _ := setupDistributionTest(t)
	testutil.SeedOrder(t, db, "ORD-001", 100, 50) // remaining 50

	run := func(results chan<- *DistributionResult, errs chan<- error) {
		svc := NewDistributionService(repos.Order, repos.DefectLog, db, zap.NewNop())
		res, err := svc.Distribute(context.Background(), testRequest(40))
		results <- res
		errs <- err
	}

	results := make(chan *DistributionResult, 2)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(results, errs)
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Distribute returned error: %v", err)
		}
	}

	var okCount, shortfall int
	for res := range results {
		switch res.Status {
		case StatusOK:
			okCount++
		case StatusExceeded, StatusChanged:
			shortfall++
		default:
			t.Fatalf("unexpected status %s", res.Status)
		}
	}
	if okCount != 1 || shortfall != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d shortfall=%d", okCount, shortfall)
	}

	order := getOrder(t, db, "ORD-001")
	if order.DefectQty != 40 {
		t.Fatalf("expected defect_qty 40 from the single winner, got %v", order.DefectQty)
	}
	if n := countLogs(t, db); n != 1 {
		t.Fatalf("expected exactly one defect log, got %d", n)
	}
}

// TestDistributeInvalidRequest rejects malformed requests before any
// transaction starts.
func TestDistributeInvalidRequest(t *testing.T) {
	_, _, svc := setupDistributionTest(t)

	req := testRequest(0)
	if _, err := svc.Distribute(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for qty 0, got %v", err)
	}

	req = testRequest(10)
	req.PlantCd = ""
	if _, err := svc.Distribute(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for missing plant, got %v", err)
	}
}
