package auth

// Action names a boundary-level permission check. Handlers evaluate
// CanPerform exactly once before calling into a service; services never
// consult roles themselves.
type Action string

const (
	ActionManageUsers    Action = "manage_users"
	ActionCreateTest     Action = "create_test"
	ActionViewTest       Action = "view_test"
	ActionUpdateTest     Action = "update_test"
	ActionDeleteTest     Action = "delete_test"
	ActionManageQuestion Action = "manage_question"
	ActionGradeResponse  Action = "grade_response"
	ActionViewReports    Action = "view_reports"
)

// Resource carries the ownership facts a policy decision needs. For tests,
// questions, and responses OwnerID is the owning test's created_by.
type Resource struct {
	OwnerID int64
}

// CanPerform is the authorization policy: admins may do anything; teachers
// may create tests and read reports freely, but mutate only tests they own
// (and the questions and responses of those tests).
func CanPerform(actor *User, action Action, res Resource) bool {
	if actor == nil {
		return false
	}
	if actor.Role == "admin" {
		return true
	}
	if actor.Role != "teacher" {
		return false
	}

	switch action {
	case ActionManageUsers:
		return false
	case ActionCreateTest, ActionViewTest, ActionViewReports:
		return true
	case ActionUpdateTest, ActionDeleteTest, ActionManageQuestion, ActionGradeResponse:
		return res.OwnerID == actor.ID
	default:
		return false
	}
}
