package feedback

import (
	"time"

	"portfolio-srv/internal/database"
)

// Item 返回给客户端的留言
// 邮箱只对管理员可见，会话标识不外露
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Message   string    `json:"message"`
	Likes     int       `json:"likes"`
	Approved  bool      `json:"approved"`
	IsStarred bool      `json:"isStarred"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	Mine      bool      `json:"mine"`
	Liked     bool      `json:"liked"`
}

// Project 将视图转换为客户端数据
func Project(records []database.Feedback, v Viewer, liked LikedSet) []Item {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		it := Item{
			ID:        r.ID,
			Name:      r.Name,
			Message:   r.Message,
			Likes:     r.Likes,
			Approved:  r.Approved,
			IsStarred: r.IsStarred,
			Date:      r.ClientDate,
			CreatedAt: r.CreatedAt,
			Mine:      v.SessionID != "" && r.SessionID == v.SessionID,
			Liked:     v.Admin || (liked != nil && liked.HasLiked(r.ID)),
		}
		if v.Admin {
			it.Email = r.Email
		}
		items = append(items, it)
	}
	return items
}
