package errors

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrSlotTaken 条件写入失败：同一时段已存在有效预约
var ErrSlotTaken = errors.New("该时段已被占用")

// ErrStateChanged 条件更新未命中：记录状态已不满足前置条件
var ErrStateChanged = errors.New("记录状态已变更")

// ErrStorageUnavailable 存储层不可用（连接失败、超时等），调用方可退避重试
var ErrStorageUnavailable = errors.New("存储服务暂不可用")

// PostgreSQL SQLSTATE
const (
	pgUniqueViolation        = "23505"
	pgSerializationFailure   = "40001"
	pgDeadlockDetected       = "40P01"
	pgClassConnection        = "08"
	pgClassInsufficientRes   = "53"
	pgClassOperatorIntervene = "57"
)

// ClassifyReservation 预约写入路径的错误归类
// 占位事务中串行化失败 / 死锁意味着并发竞争落败，归为 ErrSlotTaken；其余同 ClassifyStorage
func ClassifyReservation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isTxnConflict(pgErr.Code) {
		return ErrSlotTaken
	}
	return ClassifyStorage(err)
}

// ClassifyStorage 将底层数据库错误归类为业务可识别的存储错误
//   - 唯一约束冲突 → ErrSlotTaken
//   - 串行化失败 / 死锁 → ErrStorageUnavailable，事务整体重试即可
//   - 连接类、资源不足、超时 → ErrStorageUnavailable
//   - 其余原样返回
func ClassifyStorage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrStateChanged) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return ErrSlotTaken
		case isTxnConflict(pgErr.Code),
			len(pgErr.Code) >= 2 && (pgErr.Code[:2] == pgClassConnection ||
				pgErr.Code[:2] == pgClassInsufficientRes ||
				pgErr.Code[:2] == pgClassOperatorIntervene):
			return errors.Join(ErrStorageUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrStorageUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return err
}

func isTxnConflict(code string) bool {
	return code == pgSerializationFailure || code == pgDeadlockDetected
}
