package router

import "github.com/open-builders/adkamai/internal/features/bot/models"

// Reply-keyboard labels. Users send these back as plain text.
const (
	LabelWatchAd   = "🎬 Watch Ad"
	LabelBalance   = "💰 Balance"
	LabelRefer     = "👥 Refer & Earn"
	LabelWithdraw  = "🏦 Withdraw Funds"
	LabelJoinGroup = "🎁 Join Group"
)

// Inline callback data.
const (
	CallbackWatchAd = "pre_ad"
	CallbackRefer   = "pre_ref"
)

type action int

const (
	actionNone action = iota
	actionWatchAd
	actionBalance
	actionRefer
	actionWithdraw
	actionJoinGroup
)

var labelActions = map[string]action{
	LabelWatchAd:   actionWatchAd,
	LabelBalance:   actionBalance,
	LabelRefer:     actionRefer,
	LabelWithdraw:  actionWithdraw,
	LabelJoinGroup: actionJoinGroup,
}

var callbackActions = map[string]action{
	CallbackWatchAd: actionWatchAd,
	CallbackRefer:   actionRefer,
}

// MainMenu is the persistent reply keyboard.
func MainMenu() [][]string {
	return [][]string{
		{LabelWatchAd, LabelBalance},
		{LabelRefer, LabelWithdraw},
		{LabelJoinGroup},
	}
}

func withMenu(m models.Message) models.Message {
	m.Menu = MainMenu()
	return m
}
