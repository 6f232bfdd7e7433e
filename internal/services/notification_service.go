package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/logger"
	"medidispatch/pkg/push"
	"medidispatch/pkg/sms"
)

// Notifier fans dispatch events out to the console, supervisors and crews.
// Delivery is best effort: failures are retried and logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// ConsolePublisher is the live dispatch console feed. It is satisfied by
// *websocket.Handler.
type ConsolePublisher interface {
	SendEntityUpdate(entityID, updateType string, data map[string]interface{})
	SendDriverNotification(driverID, notificationType string, data map[string]interface{})
}

type NotificationOptions struct {
	Console          ConsolePublisher
	SMS              sms.SMSProvider
	Push             map[models.DevicePlatform]push.PushProvider
	Drivers          interfaces.DriverRepository
	SupervisorPhones []string
	RetryAttempts    int
	RetryDelay       time.Duration
	Timeout          time.Duration
}

type NotificationService struct {
	opts   NotificationOptions
	logger *logger.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewNotificationService(opts NotificationOptions, log *logger.Logger, now func() time.Time) *NotificationService {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = utils.NotificationRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = utils.NotificationRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = utils.NotificationTimeout
	}
	return &NotificationService{
		opts:   opts,
		logger: log.WithComponent("notifications"),
		now:    now,
	}
}

// Notify delivers in the background so a slow provider never holds up a
// state transition. Wait blocks until in-flight deliveries finish.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
		defer cancel()
		s.deliver(deliverCtx, n)
	}()
}

func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) deliver(ctx context.Context, n models.Notification) {
	log := s.logger.WithContext(ctx).WithEntity(string(n.EntityType), n.EntityID).WithField("notification", n.Type)
	data := notificationData(n)

	if s.opts.Console != nil {
		s.opts.Console.SendEntityUpdate(n.EntityID, string(n.Type), data)
		if n.DriverID != "" {
			s.opts.Console.SendDriverNotification(n.DriverID, string(n.Type), data)
		}
	}

	if n.DriverID != "" {
		if err := s.pushToDriver(ctx, n); err != nil {
			log.WithError(err).Warn("Push delivery failed")
		}
	}

	if n.IsCritical() {
		if err := s.pageSupervisors(ctx, n); err != nil {
			log.WithError(err).Error("Supervisor paging failed")
		}
	}
}

func (s *NotificationService) pushToDriver(ctx context.Context, n models.Notification) error {
	if len(s.opts.Push) == 0 || s.opts.Drivers == nil {
		return nil
	}

	driver, err := s.opts.Drivers.GetByID(ctx, n.DriverID)
	if err != nil {
		return fmt.Errorf("failed to load driver: %w", err)
	}
	if driver.DeviceToken == "" {
		return nil
	}

	provider, ok := s.opts.Push[driver.DevicePlatform]
	if !ok {
		return nil
	}

	request := &push.NotificationRequest{
		Token:       driver.DeviceToken,
		Title:       n.Title,
		Body:        n.Message,
		Data:        stringData(n),
		Priority:    "high",
		CollapseKey: n.EntityID,
	}

	return s.retry(ctx, func() error {
		resp, err := provider.SendNotification(ctx, request)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s rejected notification: %s", provider.Name(), resp.Error)
		}
		return nil
	})
}

func (s *NotificationService) pageSupervisors(ctx context.Context, n models.Notification) error {
	if s.opts.SMS == nil || len(s.opts.SupervisorPhones) == 0 {
		return nil
	}

	text := fmt.Sprintf("[%s] %s: %s", n.EntityID, n.Title, n.Message)
	pending := make([]string, len(s.opts.SupervisorPhones))
	copy(pending, s.opts.SupervisorPhones)

	return s.retry(ctx, func() error {
		requests := make([]*sms.SMSRequest, len(pending))
		for i, phone := range pending {
			requests[i] = &sms.SMSRequest{To: phone, Message: text, Type: "alert"}
		}

		responses, err := s.opts.SMS.SendBulkSMS(ctx, requests)
		if err != nil {
			return err
		}

		var failed []string
		for i, resp := range responses {
			if resp == nil || resp.Error != "" {
				failed = append(failed, pending[i])
				s.logger.WithField("to", utils.MaskPhone(pending[i])).Debug("Supervisor page not delivered")
			}
		}
		pending = failed
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d supervisor messages failed", len(failed), len(requests))
		}
		return nil
	})
}

func (s *NotificationService) retry(ctx context.Context, fn func() error) error {
	return utils.RetryWithBackoff(ctx, fn, s.opts.RetryAttempts, s.opts.RetryDelay)
}

func notificationData(n models.Notification) map[string]interface{} {
	data := map[string]interface{}{
		"entity_type": n.EntityType,
		"entity_id":   n.EntityID,
		"title":       n.Title,
		"message":     n.Message,
		"created_at":  n.CreatedAt,
	}
	if n.Severity != "" {
		data["severity"] = n.Severity
	}
	for k, v := range n.Data {
		data[k] = v
	}
	return data
}

func stringData(n models.Notification) map[string]string {
	out := map[string]string{
		"type":        string(n.Type),
		"entity_type": string(n.EntityType),
		"entity_id":   n.EntityID,
	}
	for k, v := range n.Data {
		out[k] = fmt.Sprint(v)
	}
	return out
}
