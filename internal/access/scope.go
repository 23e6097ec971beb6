package access

import "gorm.io/gorm"

// VisibleUsers limits a users query to what p may see:
// staff see everyone, others only their own row, anonymous nothing.
func VisibleUsers(p Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case !p.Authenticated:
			return db.Where("1 = 0")
		case p.IsStaff:
			return db
		default:
			return db.Where("users.id = ?", p.UserID)
		}
	}
}
