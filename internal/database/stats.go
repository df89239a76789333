package database

import (
	"context"
	"time"
)

// Stats 统计数据
type Stats struct {
	FeedbackCount   int `json:"feedbackCount"`
	PendingCount    int `json:"pendingCount"`
	StarredCount    int `json:"starredCount"`
	TotalLikes      int `json:"totalLikes"`
	WinnerCount     int `json:"winnerCount"`
	TodayNewWinners int `json:"todayNewWinners"`
	TodayFeedback   int `json:"todayFeedback"`
}

// GetAllStats 获取所有统计信息
func GetAllStats(ctx context.Context, store Store, now time.Time) (*Stats, error) {
	feedback, err := store.ListFeedback(ctx)
	if err != nil {
		return nil, err
	}
	winners, err := store.ListWinners(ctx)
	if err != nil {
		return nil, err
	}

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	s := &Stats{
		FeedbackCount: len(feedback),
		WinnerCount:   len(winners),
	}
	for _, f := range feedback {
		if !f.Approved {
			s.PendingCount++
		}
		if f.IsStarred {
			s.StarredCount++
		}
		if !f.CreatedAt.Before(today) {
			s.TodayFeedback++
		}
		s.TotalLikes += f.Likes
	}
	for _, w := range winners {
		if !w.CreatedAt.Before(today) {
			s.TodayNewWinners++
		}
	}
	return s, nil
}
