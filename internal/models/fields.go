package models

// FieldRecord is the flat set of values requested from the fields prompt.
// Values are kept as the model wrote them.
type FieldRecord map[string]string

// ADT1FieldKeys lists the keys the fields prompt asks for, in prompt order.
var ADT1FieldKeys = []string{
	"company_name",
	"cin",
	"email_of_company",
	"audit_account_period",
	"registered_office",
	"appointment_date",
	"number_of_years_to_audit",
	"auditor_name",
	"auditor_address",
	"auditor_email",
	"auditor_frn_or_membership",
	"appointment_type",
}
