package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/stores/dbtest"
	"storefront-service/internal/stores/kafka"
)

type fakeProcessor struct {
	intent    Intent
	createErr error
	event     Event
	parseErr  error

	amount   int64
	currency string
	metadata map[string]string
}

func (f *fakeProcessor) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	f.amount, f.currency, f.metadata = amount, currency, metadata
	return f.intent, f.createErr
}

func (f *fakeProcessor) ParseEvent([]byte, string) (Event, error) {
	return f.event, f.parseErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type blockingPublisher struct {
	err chan error
}

func (p *blockingPublisher) Publish(ctx context.Context, _, _ string, _ any) error {
	<-ctx.Done()
	p.err <- ctx.Err()
	return ctx.Err()
}

type PaymentTestSuite struct {
	suite.Suite
	db        *gorm.DB
	ctx       context.Context
	processor *fakeProcessor
	publisher *recordingPublisher
	conf      *Conf
	user      models.User
}

func TestPayment(t *testing.T) {
	suite.Run(t, new(PaymentTestSuite))
}

func (s *PaymentTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = dbtest.Open(s.T())
	s.processor = &fakeProcessor{intent: Intent{ID: "pi_123", ClientSecret: "pi_123_secret"}}
	s.publisher = &recordingPublisher{}

	var err error
	s.conf, err = NewConf(s.db, s.processor, "usd", s.publisher)
	s.Require().NoError(err)
	s.user = dbtest.SeedUser(s.T(), s.db, "buyer@example.com", "Customer")
}

func (s *PaymentTestSuite) order(number, total string) models.Order {
	return dbtest.SeedOrder(s.T(), s.db, s.user.ID, number, total, models.OrderPending, models.PaymentPending)
}

func (s *PaymentTestSuite) reload(id uint) models.Order {
	var o models.Order
	s.Require().NoError(s.db.First(&o, id).Error)
	return o
}

func (s *PaymentTestSuite) TestNewConfRejectsMissingDeps() {
	_, err := NewConf(nil, s.processor, "usd", nil)
	s.Error(err)
	_, err = NewConf(s.db, nil, "usd", nil)
	s.Error(err)
}

func (s *PaymentTestSuite) TestCreatePaymentIntent() {
	o := s.order("ORD-20250101000000-1234", "25.99")

	resp, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)
	s.Equal("pi_123", resp.PaymentIntentID)
	s.Equal("pi_123_secret", resp.ClientSecret)
	s.Equal("25.99", resp.Amount.StringFixed(2))

	s.Equal(int64(2599), s.processor.amount)
	s.Equal("usd", s.processor.currency)
	s.Equal("ORD-20250101000000-1234", s.processor.metadata["order_number"])

	stored := s.reload(o.ID)
	s.Require().NotNil(stored.PaymentIntentID)
	s.Equal("pi_123", *stored.PaymentIntentID)
	s.Equal(models.PaymentPending, stored.PaymentStatus)
}

func (s *PaymentTestSuite) TestCreatePaymentIntentTruncatesFractionalCents() {
	o := s.order("ORD-20250101000000-1235", "10.005")

	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)
	s.Equal(int64(1000), s.processor.amount)
}

func (s *PaymentTestSuite) TestCreatePaymentIntentErrors() {
	other := dbtest.SeedUser(s.T(), s.db, "other@example.com", "Customer")
	o := s.order("ORD-20250101000000-2000", "10.00")

	_, err := s.conf.CreatePaymentIntent(s.ctx, other.ID, o.ID)
	s.True(apperr.IsNotFound(err))

	_, err = s.conf.CreatePaymentIntent(s.ctx, s.user.ID, 9999)
	s.True(apperr.IsNotFound(err))

	paid := dbtest.SeedOrder(s.T(), s.db, s.user.ID, "ORD-20250101000000-2001", "10.00", models.OrderProcessing, models.PaymentPaid)
	_, err = s.conf.CreatePaymentIntent(s.ctx, s.user.ID, paid.ID)
	s.True(apperr.IsConflict(err))
	s.Equal("order has already been paid", apperr.Message(err))
}

func (s *PaymentTestSuite) TestCreatePaymentIntentProcessorFailure() {
	o := s.order("ORD-20250101000000-3000", "10.00")
	s.processor.createErr = &ProcessorError{Msg: "Your card was declined.", Err: errors.New("card_error")}

	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.True(apperr.IsConflict(err))
	s.Equal("payment processing error: Your card was declined.", apperr.Message(err))
	s.Nil(s.reload(o.ID).PaymentIntentID)
}

func (s *PaymentTestSuite) TestSucceededCallbackMarksOrderPaid() {
	o := s.order("ORD-20250101000000-4000", "10.00")
	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)

	s.processor.event = Event{ID: "evt_1", Type: EventIntentSucceeded, IntentID: "pi_123"}
	handled, err := s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)
	s.True(handled)

	stored := s.reload(o.ID)
	s.Equal(models.PaymentPaid, stored.PaymentStatus)
	s.Equal(models.OrderProcessing, stored.Status)

	s.Require().Len(s.publisher.events, 1)
	s.Equal(kafka.TopicOrderPaid, s.publisher.topics[0])
	ev := s.publisher.events[0].(kafka.OrderPaidEvent)
	s.Equal(o.ID, ev.OrderID)
	s.Equal("pi_123", ev.PaymentIntentID)
}

func (s *PaymentTestSuite) TestSucceededCallbackWithUnreachableBroker() {
	publisher := &blockingPublisher{err: make(chan error, 1)}
	conf, err := NewConf(s.db, s.processor, "usd", publisher)
	s.Require().NoError(err)
	conf.publishTimeout = 50 * time.Millisecond

	o := s.order("ORD-20250101000000-4001", "10.00")
	_, err = conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)

	s.processor.event = Event{ID: "evt_1", Type: EventIntentSucceeded, IntentID: "pi_123"}
	start := time.Now()
	handled, err := conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)
	s.True(handled)
	s.Less(time.Since(start), 2*time.Second)
	s.ErrorIs(<-publisher.err, context.DeadlineExceeded)
	s.Equal(models.PaymentPaid, s.reload(o.ID).PaymentStatus)
}

func (s *PaymentTestSuite) TestSucceededCallbackReplayIsIdempotent() {
	o := s.order("ORD-20250101000000-5000", "10.00")
	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)
	s.processor.event = Event{ID: "evt_1", Type: EventIntentSucceeded, IntentID: "pi_123"}

	_, err = s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)
	first := s.reload(o.ID)

	handled, err := s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)
	s.True(handled)

	second := s.reload(o.ID)
	s.Equal(first.PaymentStatus, second.PaymentStatus)
	s.Equal(first.Status, second.Status)
	s.True(first.UpdatedAt.Equal(second.UpdatedAt))
	s.Len(s.publisher.events, 1)
}

func (s *PaymentTestSuite) TestSucceededReplayKeepsLaterStatus() {
	o := s.order("ORD-20250101000000-5001", "10.00")
	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)
	s.processor.event = Event{Type: EventIntentSucceeded, IntentID: "pi_123"}
	_, err = s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)

	s.Require().NoError(s.db.Model(&models.Order{}).Where("id = ?", o.ID).Update("status", string(models.OrderShipped)).Error)
	_, err = s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)
	s.Equal(models.OrderShipped, s.reload(o.ID).Status)
}

func (s *PaymentTestSuite) TestFailedCallbackMarksPaymentFailed() {
	o := s.order("ORD-20250101000000-6000", "10.00")
	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)

	s.processor.event = Event{Type: EventIntentFailed, IntentID: "pi_123"}
	handled, err := s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)
	s.True(handled)

	stored := s.reload(o.ID)
	s.Equal(models.PaymentFailed, stored.PaymentStatus)
	s.Equal(models.OrderPending, stored.Status)
	s.Empty(s.publisher.events)
}

func (s *PaymentTestSuite) TestCallbackWithoutMatchingOrderChangesNothing() {
	o := s.order("ORD-20250101000000-7000", "10.00")
	before := s.reload(o.ID)

	for _, typ := range []string{EventIntentSucceeded, EventIntentFailed} {
		s.processor.event = Event{Type: typ, IntentID: "pi_unknown"}
		handled, err := s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
		s.Require().NoError(err)
		s.True(handled)
	}

	after := s.reload(o.ID)
	s.Equal(before.PaymentStatus, after.PaymentStatus)
	s.Equal(before.Status, after.Status)
	s.True(before.UpdatedAt.Equal(after.UpdatedAt))
	s.Empty(s.publisher.events)
}

func (s *PaymentTestSuite) TestUnhandledEventTypeIsAcknowledged() {
	s.processor.event = Event{Type: "charge.refunded"}
	handled, err := s.conf.HandleCallback(s.ctx, []byte("{}"), "sig")
	s.NoError(err)
	s.True(handled)
}

func (s *PaymentTestSuite) TestUnverifiedCallbackIsRejected() {
	o := s.order("ORD-20250101000000-8000", "10.00")
	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)

	s.processor.event = Event{Type: EventIntentSucceeded, IntentID: "pi_123"}
	s.processor.parseErr = errors.New("signature mismatch")
	handled, err := s.conf.HandleCallback(s.ctx, []byte("{}"), "bad")
	s.NoError(err)
	s.False(handled)
	s.Equal(models.PaymentPending, s.reload(o.ID).PaymentStatus)
}

func (s *PaymentTestSuite) TestCallbackStoreFailureIsReported() {
	o := s.order("ORD-20250101000000-9000", "10.00")
	_, err := s.conf.CreatePaymentIntent(s.ctx, s.user.ID, o.ID)
	s.Require().NoError(err)

	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	s.Require().NoError(sqlDB.Close())

	s.processor.event = Event{Type: EventIntentSucceeded, IntentID: "pi_123"}
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	handled, err := s.conf.HandleCallback(ctx, []byte("{}"), "sig")
	s.Error(err)
	s.False(handled)
}
