package rbac

// Permission names a gated institution operation.
type Permission string

const (
	PermViewDashboard            Permission = "view_dashboard"
	PermViewInstitution          Permission = "view_institution"
	PermManageInstitutionProfile Permission = "manage_institution_profile"
	PermManageStaff              Permission = "manage_staff"
	PermViewStaff                Permission = "view_staff"
	PermManageStudents           Permission = "manage_students"
	PermImportStudents           Permission = "import_students"
	PermViewStudents             Permission = "view_students"
	PermManageAcademicStructure  Permission = "manage_academic_structure"
	PermViewAcademicStructure    Permission = "view_academic_structure"
	PermManagePrograms           Permission = "manage_programs"
	PermManageFeeStructures      Permission = "manage_fee_structures"
	PermViewFeeStructures        Permission = "view_fee_structures"
	PermAssignFees               Permission = "assign_fees"
	PermManageOverdue            Permission = "manage_overdue"
	PermRecordPayments           Permission = "record_payments"
	PermViewFeeRecords           Permission = "view_fee_records"
	PermViewFeeAnalysis          Permission = "view_fee_analysis"
	PermViewAuditLog             Permission = "view_audit_log"
	PermSendMessages             Permission = "send_messages"
	PermViewMessages             Permission = "view_messages"
)

// AllPermissions lists every permission.
func AllPermissions() []Permission {
	return []Permission{
		PermViewDashboard, PermViewInstitution, PermManageInstitutionProfile,
		PermManageStaff, PermViewStaff,
		PermManageStudents, PermImportStudents, PermViewStudents,
		PermManageAcademicStructure, PermViewAcademicStructure, PermManagePrograms,
		PermManageFeeStructures, PermViewFeeStructures,
		PermAssignFees, PermManageOverdue, PermRecordPayments, PermViewFeeRecords,
		PermViewFeeAnalysis, PermViewAuditLog,
		PermSendMessages, PermViewMessages,
	}
}

var everyRole = []Permission{PermViewDashboard, PermViewInstitution, PermViewAcademicStructure}

var financeGrants = []Permission{
	PermViewStudents, PermManagePrograms,
	PermManageFeeStructures, PermViewFeeStructures,
	PermAssignFees, PermManageOverdue, PermRecordPayments, PermViewFeeRecords, PermViewFeeAnalysis,
}

// Grants reports whether role r holds permission p. Every role has its own case so a new
// role does not compile into silent access.
func (r Role) Grants(p Permission) bool {
	if contains(everyRole, p) {
		return r.valid()
	}

	switch r {
	case RoleAdmin:
		return contains([]Permission{
			PermManageInstitutionProfile, PermManageStaff, PermViewStaff,
			PermManageStudents, PermImportStudents, PermViewStudents,
			PermManageAcademicStructure, PermManagePrograms,
			PermViewFeeStructures, PermAssignFees, PermManageOverdue, PermViewFeeRecords,
			PermViewAuditLog, PermViewMessages,
		}, p)
	case RolePrincipal:
		return contains([]Permission{
			PermViewStaff, PermViewStudents,
			PermViewFeeStructures, PermViewFeeRecords, PermViewFeeAnalysis,
			PermViewAuditLog, PermSendMessages, PermViewMessages,
		}, p)
	case RoleDeputyPrincipal:
		return contains([]Permission{PermViewStaff, PermViewStudents, PermViewMessages}, p)
	case RoleBursar, RoleAccountant:
		return contains(financeGrants, p)
	case RoleTeacher:
		return p == PermViewStudents
	case RoleRegistrar:
		return contains([]Permission{PermManageStudents, PermImportStudents, PermViewStudents}, p)
	case RoleSupportStaff:
		return false
	}
	return false
}

// AllowedRoles is the set of roles holding p.
func (p Permission) AllowedRoles() RoleSet {
	out := make(RoleSet, 0, len(allRoles))
	for _, r := range allRoles {
		if r.Grants(p) {
			out = append(out, r)
		}
	}
	return out
}

func (r Role) valid() bool {
	switch r {
	case RoleAdmin, RolePrincipal, RoleDeputyPrincipal, RoleBursar, RoleTeacher, RoleAccountant, RoleRegistrar, RoleSupportStaff:
		return true
	}
	return false
}

func contains(perms []Permission, p Permission) bool {
	for _, candidate := range perms {
		if candidate == p {
			return true
		}
	}
	return false
}
