package aggregation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	aggrepo "github.com/yungbote/aggregation-backend/internal/data/repos/aggregation"
	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/pkg/dbctx"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

// Verdict is the outcome of validating one scan. Rejections are values, not errors.
type Verdict struct {
	Accept  bool
	Role    domainagg.Role
	Kind    domainagg.ErrorKind
	Message string
	Code    *types.Code
}

func reject(kind domainagg.ErrorKind, format string, args ...any) Verdict {
	return Verdict{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func accept(role domainagg.Role, code *types.Code) Verdict {
	return Verdict{Accept: true, Role: role, Code: code, Message: fmt.Sprintf("accepted as %s", role)}
}

// RejectionFrom turns a typed engine error into a rejected verdict.
func RejectionFrom(err error) (Verdict, bool) {
	kind := domainagg.KindOf(err)
	if kind == "" {
		return Verdict{}, false
	}
	msg := err.Error()
	var e *domainagg.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	return Verdict{Kind: kind, Message: msg}, true
}

// Validator decides whether a scanned code may be committed and in which role.
// It has no side effects; the returned error is reserved for store failures.
type Validator interface {
	Validate(ctx context.Context, session *types.AggregationSession, value string) (Verdict, error)
}

type validator struct {
	log   *logger.Logger
	codes aggrepo.CodeRepo
}

func NewValidator(baseLog *logger.Logger, codes aggrepo.CodeRepo) Validator {
	return &validator{
		log:   baseLog.With("service", "AggregationValidator"),
		codes: codes,
	}
}

func (v *validator) Validate(ctx context.Context, s *types.AggregationSession, value string) (Verdict, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return reject(domainagg.KindInvalidArgument, "scanned code is required"), nil
	}
	if s == nil {
		return reject(domainagg.KindSessionNotFound, "session not found"), nil
	}
	if s.Status != domainagg.StatusOpen {
		return reject(domainagg.KindSessionNotOpen, "session is %s", s.Status), nil
	}
	if s.Contains(value) {
		return reject(domainagg.KindDuplicateInSession, "code %s already scanned in this session", value), nil
	}

	st := domainagg.StateOf(s)

	if s.AggregationType == domainagg.TypeFull && !s.HasTarget() {
		return v.validateTarget(ctx, value)
	}

	if st.LimitReached {
		return reject(domainagg.KindLimitReached, "all %d packages are aggregated; finalize the session", s.PackagesPerPallet), nil
	}

	code, err := v.codes.GetByValue(dbctx.Context{Ctx: ctx}, value)
	if err != nil {
		return Verdict{}, err
	}
	if code == nil {
		return reject(domainagg.KindNotFound, "code %s not found", value), nil
	}

	if st.ExpectingParent {
		want := domainagg.ParentClass(s.AggregationType)
		if code.Kind != domainagg.KindComposed || domainagg.Classify(code) != want {
			return reject(domainagg.KindWrongType, "expecting a %s code to close cycle %d", want, st.CompletedCycles), nil
		}
		return accept(domainagg.RoleParent, code), nil
	}

	want := domainagg.ChildClass(s.AggregationType)
	if domainagg.Classify(code) != want {
		if code.Kind == domainagg.KindComposed && domainagg.Classify(code) == domainagg.ParentClass(s.AggregationType) {
			remaining := st.RemainingInCycle
			if remaining == 0 {
				remaining = s.OutersPerAggregation
			}
			return reject(domainagg.KindWrongType, "cycle %d still needs %d %s codes", st.CompletedCycles+1, remaining, want), nil
		}
		return reject(domainagg.KindWrongType, "expecting a %s code", want), nil
	}
	if want == domainagg.ClassPackage {
		// Packages were configured as parents of their own cycle; only
		// attached counters or an existing pallet rule them out.
		if code.HasProductData() || code.IsAggregated {
			return reject(domainagg.KindAlreadyConfigured, "package %s is already aggregated into a pallet", value), nil
		}
		return accept(domainagg.RoleOuter, code), nil
	}
	if code.Configured() {
		return reject(domainagg.KindAlreadyConfigured, "code %s is configured", value), nil
	}
	return accept(domainagg.RoleOuter, code), nil
}

func (v *validator) validateTarget(ctx context.Context, value string) (Verdict, error) {
	code, err := v.codes.GetByValue(dbctx.Context{Ctx: ctx}, value)
	if err != nil {
		return Verdict{}, err
	}
	if code == nil {
		return reject(domainagg.KindNotFound, "code %s not found", value), nil
	}
	if code.Kind != domainagg.KindComposed || domainagg.Classify(code) != domainagg.ClassPallet {
		return reject(domainagg.KindWrongType, "first scan of a FULL session must be a PALLET code"), nil
	}
	if code.Configured() {
		return reject(domainagg.KindAlreadyConfigured, "pallet %s is configured", value), nil
	}
	if code.IsAggregated {
		return reject(domainagg.KindAlreadyConfigured, "pallet %s is already aggregated", value), nil
	}
	return accept(domainagg.RoleTarget, code), nil
}
