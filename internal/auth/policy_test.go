package auth

import "testing"

func TestCanPerform(t *testing.T) {
	admin := &User{ID: 1, Role: "admin"}
	owner := &User{ID: 7, Role: "teacher"}
	other := &User{ID: 8, Role: "teacher"}

	tests := []struct {
		name   string
		actor  *User
		action Action
		res    Resource
		want   bool
	}{
		{name: "nil actor denied", actor: nil, action: ActionViewTest, want: false},
		{name: "admin manages users", actor: admin, action: ActionManageUsers, want: true},
		{name: "admin mutates any test", actor: admin, action: ActionDeleteTest, res: Resource{OwnerID: 7}, want: true},
		{name: "teacher cannot manage users", actor: owner, action: ActionManageUsers, want: false},
		{name: "teacher creates tests", actor: owner, action: ActionCreateTest, want: true},
		{name: "teacher views any test", actor: other, action: ActionViewTest, res: Resource{OwnerID: 7}, want: true},
		{name: "teacher views reports", actor: other, action: ActionViewReports, res: Resource{OwnerID: 7}, want: true},
		{name: "owner updates own test", actor: owner, action: ActionUpdateTest, res: Resource{OwnerID: 7}, want: true},
		{name: "teacher cannot update foreign test", actor: other, action: ActionUpdateTest, res: Resource{OwnerID: 7}, want: false},
		{name: "teacher cannot delete foreign test", actor: other, action: ActionDeleteTest, res: Resource{OwnerID: 7}, want: false},
		{name: "owner manages own questions", actor: owner, action: ActionManageQuestion, res: Resource{OwnerID: 7}, want: true},
		{name: "teacher cannot grade foreign responses", actor: other, action: ActionGradeResponse, res: Resource{OwnerID: 7}, want: false},
		{name: "owner grades own responses", actor: owner, action: ActionGradeResponse, res: Resource{OwnerID: 7}, want: true},
		{name: "unknown role denied", actor: &User{ID: 9, Role: "student"}, action: ActionViewTest, want: false},
		{name: "unknown action denied for teacher", actor: owner, action: Action("reboot"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanPerform(tc.actor, tc.action, tc.res); got != tc.want {
				t.Fatalf("CanPerform(%v, %q, %+v) = %v, want %v", tc.actor, tc.action, tc.res, got, tc.want)
			}
		})
	}
}
