package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionPapersGrade allows listing papers awaiting manual grading
	// and grading essay questions.
	PermissionPapersGrade Permission = "papers:grade"

	// PermissionPapersAdmin allows listing, inspecting and deleting any
	// paper and reloading the question library.
	PermissionPapersAdmin Permission = "papers:admin"
)

// AllPermissions lists every permission code, used when minting staff tokens.
var AllPermissions = []Permission{
	PermissionPapersGrade,
	PermissionPapersAdmin,
}
