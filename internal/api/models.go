package api

import (
	"strings"
	"time"
)

// User is the author block embedded in comments and activities.
type User struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`
}

// AvatarURL returns whichever avatar field the backend populated.
func (u User) AvatarURL() string {
	if u.ProfilePicURL != "" {
		return u.ProfilePicURL
	}
	return u.Avatar
}

// Comment is one message in an activity's conversation thread.
type Comment struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	User      User      `json:"user"`
}

func (c Comment) ItemID() int64          { return c.ID }
func (c Comment) ItemAuthorID() int64    { return c.User.ID }
func (c Comment) ItemAuthorName() string { return c.User.Name }
func (c Comment) ItemTime() time.Time    { return c.CreatedAt }
func (c Comment) ItemContent() string    { return strings.TrimSpace(c.Content) }

type createCommentRequest struct {
	Comment struct {
		Content string `json:"content"`
	} `json:"comment"`
}

// Activity is the full activity snapshot returned by GET /activities/{id}.
// Phase is encoded by the backend as independent flags.
type Activity struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        string    `json:"date"`
	User        User      `json:"user"`
	Collecting  bool      `json:"collecting"`
	Voting      bool      `json:"voting"`
	Finalized   bool      `json:"finalized"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActivityPatch carries the partial fields sent with PATCH /activities/{id}.
// Nil fields are left untouched.
type ActivityPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	Date        *string `json:"date,omitempty"`
	Collecting  *bool   `json:"collecting,omitempty"`
	Voting      *bool   `json:"voting,omitempty"`
	Finalized   *bool   `json:"finalized,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ActivityPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil && p.Date == nil &&
		p.Collecting == nil && p.Voting == nil && p.Finalized == nil && p.Completed == nil
}

// Apply returns a copy of a with the patch fields applied.
func (p ActivityPatch) Apply(a Activity) Activity {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Location != nil {
		a.Location = *p.Location
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Collecting != nil {
		a.Collecting = *p.Collecting
	}
	if p.Voting != nil {
		a.Voting = *p.Voting
	}
	if p.Finalized != nil {
		a.Finalized = *p.Finalized
	}
	if p.Completed != nil {
		a.Completed = *p.Completed
	}
	return a
}
