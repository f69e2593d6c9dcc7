package enrollment

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const serviceName = "EnrollmentService"

// logService wraps Service with automatic logging of all method calls.
// Minutiae and digests are secret material and never appear in log
// output; only counts and outcomes do.
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the enrollment Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// Enroll wraps the service method with logging
func (ls *logService) Enroll(ctx context.Context, req *EnrollRequest) (resp *EnrollResult, err error) {
	start := time.Now()

	ls.logger.Info("Enroll started",
		zap.String("service", serviceName),
		zap.String("method", "Enroll"),
		zap.Int("fingers", len(req.Fingers)),
		zap.String("mode", req.Mode),
		zap.String("network", req.Network),
		zap.Int("controllers", len(req.Controllers)),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("Enroll failed",
				zap.String("service", serviceName),
				zap.String("method", "Enroll"),
				zap.Int("fingers", len(req.Fingers)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Enroll completed",
				zap.String("service", serviceName),
				zap.String("method", "Enroll"),
				zap.String("did", resp.DID),
				zap.String("id_hash", resp.IDHash),
				zap.Int("helpers", len(resp.Helpers)),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Enroll(ctx, req)
}

// Verify wraps the service method with logging
func (ls *logService) Verify(ctx context.Context, req *VerifyRequest) (resp *VerifyResult, err error) {
	start := time.Now()

	ls.logger.Info("Verify started",
		zap.String("service", serviceName),
		zap.String("method", "Verify"),
		zap.Int("fingers", len(req.Fingers)),
		zap.Int("helpers", len(req.Helpers)),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("Verify failed",
				zap.String("service", serviceName),
				zap.String("method", "Verify"),
				zap.Int("fingers", len(req.Fingers)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Verify completed",
				zap.String("service", serviceName),
				zap.String("method", "Verify"),
				zap.Bool("success", resp.Success),
				zap.String("reason", resp.Reason),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Verify(ctx, req)
}

// RotateFinger wraps the service method with logging
func (ls *logService) RotateFinger(ctx context.Context, req *RotateRequest) (resp *RotateResult, err error) {
	start := time.Now()

	ls.logger.Info("RotateFinger started",
		zap.String("service", serviceName),
		zap.String("method", "RotateFinger"),
		zap.String("finger_id", req.RotateFingerID),
		zap.Int("enrolled_fingers", len(req.Digests)),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("RotateFinger failed",
				zap.String("service", serviceName),
				zap.String("method", "RotateFinger"),
				zap.String("finger_id", req.RotateFingerID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("RotateFinger completed",
				zap.String("service", serviceName),
				zap.String("method", "RotateFinger"),
				zap.String("finger_id", req.RotateFingerID),
				zap.String("did", resp.DID),
				zap.String("id_hash", resp.IDHash),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.RotateFinger(ctx, req)
}
