package world

// Action kinds reachable through Dispatch.
const (
	KindDeposit   = "DEPOSIT"
	KindWithdraw  = "WITHDRAW"
	KindTransfer  = "TRANSFER"
	KindTakeLoan  = "TAKE_LOAN"
	KindRepayLoan = "REPAY_LOAN"

	KindApplyJob  = "APPLY_JOB"
	KindQuitJob   = "QUIT_JOB"
	KindWorkShift = "WORK_SHIFT"

	KindBuyProperty  = "BUY_PROPERTY"
	KindSellProperty = "SELL_PROPERTY"
	KindCollectRent  = "COLLECT_RENT"

	KindBuyAsset  = "BUY_ASSET"
	KindSellAsset = "SELL_ASSET"

	KindCoinflip = "COINFLIP"
	KindDice     = "DICE"
	KindSlots    = "SLOTS"

	KindSendMessage = "SEND_MESSAGE"
	KindPostNews    = "POST_NEWS"
	KindGiftCash    = "GIFT_CASH"

	KindSubmitRequest  = "SUBMIT_REQUEST"
	KindResolveRequest = "RESOLVE_REQUEST"
)

// Privileged bulk kinds, reachable only through DispatchAdmin.
const (
	KindGrantCashAll = "GRANT_CASH_ALL"
	KindResetActor   = "RESET_ACTOR"
	KindSetSetting   = "SET_SETTING"
)

var reducerDispatch = map[string]Reducer{
	KindDeposit:   reduceDeposit,
	KindWithdraw:  reduceWithdraw,
	KindTransfer:  reduceTransfer,
	KindTakeLoan:  reduceTakeLoan,
	KindRepayLoan: reduceRepayLoan,

	KindApplyJob:  reduceApplyJob,
	KindQuitJob:   reduceQuitJob,
	KindWorkShift: reduceWorkShift,

	KindBuyProperty:  reduceBuyProperty,
	KindSellProperty: reduceSellProperty,
	KindCollectRent:  reduceCollectRent,

	KindBuyAsset:  reduceBuyAsset,
	KindSellAsset: reduceSellAsset,

	KindCoinflip: reduceCoinflip,
	KindDice:     reduceDice,
	KindSlots:    reduceSlots,

	KindSendMessage: reduceSendMessage,
	KindPostNews:    reducePostNews,
	KindGiftCash:    reduceGiftCash,

	KindSubmitRequest:  reduceSubmitRequest,
	KindResolveRequest: reduceResolveRequest,
}

var adminDispatch = map[string]Reducer{
	KindGrantCashAll: reduceGrantCashAll,
	KindResetActor:   reduceResetActor,
	KindSetSetting:   reduceSetSetting,
}

// Payload accessors. Envelopes arrive from JSON, so numbers may be float64.

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

func payloadInt(p map[string]any, key string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func payloadBool(p map[string]any, key string) bool {
	if p == nil {
		return false
	}
	b, _ := p[key].(bool)
	return b
}

func (w *World) addNews(s *WorldState, headline, body string) {
	s.News = append(s.News, NewsItem{Turn: s.Turn, Headline: headline, Body: body})
	if len(s.News) > w.cfg.MaxNews {
		s.News = s.News[len(s.News)-w.cfg.MaxNews:]
	}
}

func (w *World) pushInbox(a *Actor, msg Message) {
	a.Inbox = append(a.Inbox, msg)
	if len(a.Inbox) > w.cfg.MaxInbox {
		a.Inbox = a.Inbox[len(a.Inbox)-w.cfg.MaxInbox:]
	}
}
