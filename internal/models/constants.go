package models

const (
	StatusHeld           = "held"
	StatusPendingReview  = "pending_review"
	StatusPendingPayment = "pending_payment"
	StatusApprovedUnpaid = "approved_unpaid"
	StatusPaid           = "paid"
	StatusRejected       = "rejected"
	StatusCancelled      = "cancelled"
	StatusExpired        = "expired"
)

// ActiveStatuses are the in-flight statuses: the reservation still has
// outgoing transitions and a deadline (hold TTL or payment window) may
// apply to it.
var ActiveStatuses = []string{
	StatusHeld,
	StatusPendingReview,
	StatusPendingPayment,
	StatusApprovedUnpaid,
}

// SlotOccupyingStatuses are the statuses that keep a slot allocated:
// every in-flight status plus paid. The ledger's unique index over
// (doctor_id, date, start_time, end_time) applies while a reservation is
// in one of these; terminal failures (rejected/cancelled/expired) free
// the slot.
var SlotOccupyingStatuses = append(append([]string{}, ActiveStatuses...), StatusPaid)

var terminalStatuses = map[string]bool{
	StatusPaid:      true,
	StatusRejected:  true,
	StatusCancelled: true,
	StatusExpired:   true,
}

// transitions lists the allowed status moves. Terminal statuses have no
// outgoing edges.
var transitions = map[string][]string{
	StatusHeld:           {StatusPendingReview, StatusPendingPayment, StatusCancelled, StatusExpired},
	StatusPendingReview:  {StatusApprovedUnpaid, StatusRejected, StatusCancelled},
	StatusPendingPayment: {StatusPaid, StatusCancelled, StatusExpired},
	StatusApprovedUnpaid: {StatusPaid, StatusCancelled, StatusExpired},
}

func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

func IsActiveStatus(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// OccupiesSlot reports whether a reservation in this status blocks the
// slot for new holds.
func OccupiesSlot(status string) bool {
	for _, s := range SlotOccupyingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	SlotStateAvailable = "available"
	SlotStateHold      = "hold"
	SlotStateBooked    = "booked"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusExpired   = "expired"
)

const (
	FlowReview  = "review"
	FlowPayment = "payment"
)

const (
	// DefaultHoldTTLMinutes время жизни холда до подтверждения деталей
	DefaultHoldTTLMinutes = 10

	// DefaultPaymentTTLMinutes окно оплаты после одобрения или запроса оплаты
	DefaultPaymentTTLMinutes = 30

	// DefaultReconcileIntervalSeconds период фоновой уборки протухших холдов
	DefaultReconcileIntervalSeconds = 30

	// DefaultMaxAdvanceDays максимальный горизонт бронирования
	DefaultMaxAdvanceDays = 90

	// DefaultHoldRateLimit число попыток холда на пациента в окне
	DefaultHoldRateLimit = 10

	// DefaultHoldRateWindowSeconds окно лимита попыток холда
	DefaultHoldRateWindowSeconds = 60

	// DefaultDayViewCacheTTL время жизни кэша дневной сетки в секундах
	DefaultDayViewCacheTTL = 30

	// DefaultSlotDurationMinutes длительность слота, если шаблон молчит
	DefaultSlotDurationMinutes = 20

	// WorkerQueueSize размер очереди воркера синхронизации
	WorkerQueueSize = 1000
)

// DateLayout and TimeLayout are the wire formats for calendar payloads,
// "2026-02-06" and "10:00:00".
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)
