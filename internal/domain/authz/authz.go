// Package authz is the single place role and tenant checks live. Handlers and
// services consume Decision values instead of comparing roles inline, so the
// rules cannot drift between call sites.
package authz

import (
	"errors"
	"fmt"

	"github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

// ErrForbidden is the uniform authorization failure. It deliberately carries
// no detail about the resource; the denial reason stays server-side in logs.
var ErrForbidden = errors.New("you are not authorized to perform this action")

// Decision is a tagged authorization result.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err converts a denial into ErrForbidden, annotated for server-side logging.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// SameHospital is the tenant isolation guard: a principal may only touch
// records belonging to their own hospital.
func SameHospital(actor *tenants.User, hospital tenants.HospitalID) Decision {
	if actor.HospitalID != hospital {
		return deny("record belongs to a different hospital")
	}
	return allow()
}

// CanManagePatients gates record creation, CSV upload and deletion.
func CanManagePatients(actor *tenants.User) Decision {
	if actor.Role != tenants.RoleHospitalAdmin {
		return deny("only hospital admins may manage patient records")
	}
	return allow()
}

// CanDeleteRecord requires admin role in the record's hospital.
func CanDeleteRecord(actor *tenants.User, rec *patients.PatientRecord) Decision {
	if d := CanManagePatients(actor); !d.Allowed {
		return d
	}
	return SameHospital(actor, rec.HospitalID)
}

// CanAnalyzeRecord gates triggering report generation.
func CanAnalyzeRecord(actor *tenants.User, rec *patients.PatientRecord) Decision {
	if actor.Role != tenants.RoleHospitalAdmin {
		return deny("only hospital admins may trigger analysis")
	}
	return SameHospital(actor, rec.HospitalID)
}

// CanInviteDoctors gates doctor invitations.
func CanInviteDoctors(actor *tenants.User) Decision {
	if actor.Role != tenants.RoleHospitalAdmin {
		return deny("only hospital admins may invite doctors")
	}
	return allow()
}

// CanExportReports gates the reviewed-reports CSV export.
func CanExportReports(actor *tenants.User) Decision {
	if actor.Role != tenants.RoleHospitalAdmin {
		return deny("only hospital admins may export reports")
	}
	return allow()
}

// CanViewWorklist gates the pending-review queue.
func CanViewWorklist(actor *tenants.User) Decision {
	if actor.Role != tenants.RoleDoctor {
		return deny("only doctors have a review worklist")
	}
	return allow()
}

// CanAssignDoctor gates doctor assignment on an assessment.
func CanAssignDoctor(actor *tenants.User, a *assessments.RiskAssessment) Decision {
	if actor.Role != tenants.RoleHospitalAdmin {
		return deny("only hospital admins may assign doctors")
	}
	return SameHospital(actor, a.HospitalID)
}

// CanViewAssessment allows admins and doctors of the owning hospital, except
// that a doctor may not open an assessment explicitly assigned to a
// different doctor.
func CanViewAssessment(actor *tenants.User, a *assessments.RiskAssessment) Decision {
	if d := SameHospital(actor, a.HospitalID); !d.Allowed {
		return d
	}
	if actor.Role == tenants.RoleDoctor &&
		a.AssignedDoctor != nil && *a.AssignedDoctor != actor.ID {
		return deny("assessment is assigned to another doctor")
	}
	return allow()
}

// CanReviewAssessment allows the assigned doctor, or any doctor in the
// hospital when the assessment is unassigned.
func CanReviewAssessment(actor *tenants.User, a *assessments.RiskAssessment) Decision {
	if actor.Role != tenants.RoleDoctor {
		return deny("only doctors may submit reviews")
	}
	if d := SameHospital(actor, a.HospitalID); !d.Allowed {
		return d
	}
	if a.AssignedDoctor != nil && *a.AssignedDoctor != actor.ID {
		return deny("assessment is assigned to another doctor")
	}
	return allow()
}
