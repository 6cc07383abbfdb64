package models

import "fmt"

// Task is the closed set of actions a unit can resolve to. The processor
// switches on the concrete type once; nothing else inspects UploadType.
type Task interface {
	Source() *UploadUnit
	task()
}

// CreateStudent creates a portal profile for a student the LMS already holds.
type CreateStudent struct{ Unit *UploadUnit }

// UpdateAndUploadUser creates a portal profile for a user imported by upload.
// It differs from CreateStudent only in compensation: the local row is kept.
type UpdateAndUploadUser struct{ Unit *UploadUnit }

// AttachCertificate records a certificate locally and attaches it to the portal profile.
type AttachCertificate struct{ Unit *UploadUnit }

// UpdateFromRemote copies portal profile fields onto the local user.
type UpdateFromRemote struct{ Unit *UploadUnit }

func (t CreateStudent) Source() *UploadUnit       { return t.Unit }
func (t UpdateAndUploadUser) Source() *UploadUnit { return t.Unit }
func (t AttachCertificate) Source() *UploadUnit   { return t.Unit }
func (t UpdateFromRemote) Source() *UploadUnit    { return t.Unit }

func (CreateStudent) task()       {}
func (UpdateAndUploadUser) task() {}
func (AttachCertificate) task()   {}
func (UpdateFromRemote) task()    {}

// NewTask resolves a unit's upload type into its task
func NewTask(unit *UploadUnit) (Task, error) {
	switch unit.UploadInfo.UploadType {
	case UploadStudent:
		return CreateStudent{Unit: unit}, nil
	case UploadUser:
		return UpdateAndUploadUser{Unit: unit}, nil
	case UploadCertificate:
		return AttachCertificate{Unit: unit}, nil
	case UploadUpdateUser:
		return UpdateFromRemote{Unit: unit}, nil
	default:
		return nil, fmt.Errorf("unknown upload type %q", unit.UploadInfo.UploadType)
	}
}

// FailureCategory groups failures into the notifications sent at the end of a batch
type FailureCategory string

const (
	CategoryCertificate FailureCategory = "certificate"
	CategoryStudent     FailureCategory = "student"
	CategoryUnverified  FailureCategory = "unverified"
)

// Category returns the notification group for failures of this upload type
func (t UploadType) Category() FailureCategory {
	switch t {
	case UploadCertificate:
		return CategoryCertificate
	case UploadUpdateUser:
		return CategoryUnverified
	default:
		return CategoryStudent
	}
}
