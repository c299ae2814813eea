package domain

type Profile struct {
	Identity    Identity `db:"identity"`
	DisplayName string   `db:"display_name"`
	AvatarURL   string   `db:"avatar_url"`
}
