package access

import "fmt"

type Action int

const (
	ActionCreate Action = iota + 1
	ActionList
	ActionRetrieve
	ActionUpdate
	ActionPartialUpdate
	ActionDestroy
	ActionLogout
	ActionLogoutAll
	ActionChangePassword
	ActionSearch
)

var actionNames = map[Action]string{
	ActionCreate:         "create",
	ActionList:           "list",
	ActionRetrieve:       "retrieve",
	ActionUpdate:         "update",
	ActionPartialUpdate:  "partial_update",
	ActionDestroy:        "destroy",
	ActionLogout:         "logout",
	ActionLogoutAll:      "logout_all",
	ActionChangePassword: "change_password",
	ActionSearch:         "search",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Check is a single capability requirement.
type Check struct {
	Name  string
	Allow func(Principal) bool
}

var (
	AllowAny           = Check{Name: "allow_any", Allow: func(Principal) bool { return true }}
	IsNotAuthenticated = Check{Name: "is_not_authenticated", Allow: func(p Principal) bool { return !p.Authenticated }}
	IsAuthenticated    = Check{Name: "is_authenticated", Allow: func(p Principal) bool { return p.Authenticated }}
	IsStaff            = Check{Name: "is_staff", Allow: func(p Principal) bool { return p.Authenticated && p.IsStaff }}
)

var policy = map[Action][]Check{
	ActionCreate:         {IsNotAuthenticated},
	ActionList:           {AllowAny},
	ActionRetrieve:       {IsAuthenticated},
	ActionUpdate:         {IsAuthenticated},
	ActionPartialUpdate:  {IsAuthenticated},
	ActionDestroy:        {IsAuthenticated},
	ActionLogout:         {IsAuthenticated},
	ActionLogoutAll:      {IsAuthenticated},
	ActionChangePassword: {IsAuthenticated},
	ActionSearch:         {IsAuthenticated, IsStaff},
}

// Policy returns the checks bound to an action. ok is false for unknown actions.
func Policy(a Action) ([]Check, bool) {
	checks, ok := policy[a]
	return checks, ok
}

// Authorize evaluates every check of the action's policy.
// Anonymous callers get ErrNotAuthenticated, authenticated ones ErrPermissionDenied.
func Authorize(a Action, p Principal) error {
	checks, ok := policy[a]
	if !ok || len(checks) == 0 {
		return deny(p)
	}
	for _, c := range checks {
		if !c.Allow(p) {
			return deny(p)
		}
	}
	return nil
}

func deny(p Principal) error {
	if !p.Authenticated {
		return ErrNotAuthenticated
	}
	return ErrPermissionDenied
}
