package sqlassets

import _ "embed"

//go:embed schema/platform/registry.sql
var RegistrySQL string

//go:embed schema/platform/leads.sql
var LeadsSQL string

//go:embed schema/platform/audit.sql
var PlatformAuditSQL string

//go:embed schema/institution/academics.sql
var AcademicsSQL string

//go:embed schema/institution/fees.sql
var FeesSQL string

//go:embed schema/institution/messaging.sql
var MessagingSQL string

//go:embed schema/institution/audit.sql
var InstitutionAuditSQL string

// Bootstrap lists the DDL files in the order they must be applied.
func Bootstrap() []string {
	return []string{RegistrySQL, LeadsSQL, PlatformAuditSQL, AcademicsSQL, FeesSQL, MessagingSQL, InstitutionAuditSQL}
}
