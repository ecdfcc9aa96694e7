package entity

import "time"

type Profile struct {
	Id        string    `bson:"_id" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Email     string    `bson:"email" json:"email"`
	Password  string    `bson:"password" json:"-"`
	Nickname  string    `bson:"nickname" json:"nickname"`
	AvatarUrl string    `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// DisplayName is what conversation lists and notifications show.
func (p Profile) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Username
}

type ProfileIndexFilter struct {
	Ids []string `bson:"ids"`
}

type Follow struct {
	Id         string    `bson:"_id" json:"id"`
	FollowerId string    `bson:"followerId" json:"followerId"`
	FolloweeId string    `bson:"followeeId" json:"followeeId"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}
