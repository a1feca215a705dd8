// Package bot parses inbound text commands and dispatches them to the
// game services, producing a reply string for every message.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/services/announce"
	"github.com/mcoot/tradegame-bot/internal/services/auth"
	"github.com/mcoot/tradegame-bot/internal/services/inventory"
	"github.com/mcoot/tradegame-bot/internal/services/mission"
	"github.com/mcoot/tradegame-bot/internal/services/trade"
	"github.com/mcoot/tradegame-bot/internal/storage"
)

// Router turns one inbound text message into one reply
type Router struct {
	storage   storage.Storage
	auth      *auth.Service
	inventory *inventory.Service
	missions  *mission.Service
	announce  *announce.Service
	trades    *trade.Engine
	logger    *slog.Logger
	location  *time.Location
}

// NewRouter creates a command router
func NewRouter(
	store storage.Storage,
	authService *auth.Service,
	inventoryService *inventory.Service,
	missionService *mission.Service,
	announceService *announce.Service,
	tradeEngine *trade.Engine,
	logger *slog.Logger,
) *Router {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	return &Router{
		storage:   store,
		auth:      authService,
		inventory: inventoryService,
		missions:  missionService,
		announce:  announceService,
		trades:    tradeEngine,
		logger:    logger,
		location:  loc,
	}
}

// Handle routes one message from the given external user and returns the
// reply text. It never returns an error: faults are logged and answered
// with a generic internal-error reply.
func (r *Router) Handle(ctx context.Context, userID, text string) (reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic handling command",
				slog.Any("error", rec),
				slog.String("user_id", userID),
				slog.String("text", text),
			)
			reply = replyInternalError
		}
	}()

	text = strings.TrimSpace(text)

	sess, ok := r.auth.SessionFor(userID)
	if !ok {
		return r.handleGuest(ctx, userID, text)
	}

	if sess.Identity.IsTeam() {
		return r.handleTeam(ctx, userID, sess.Identity, text)
	}
	return r.handleAdmin(ctx, userID, sess.Identity, text)
}

// Guest commands

func (r *Router) handleGuest(ctx context.Context, userID, text string) string {
	switch {
	case text == "密碼" || hasKeyword(text, "密碼"):
		parts := strings.SplitN(text, " ", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return "指令格式：密碼 [您的隊伍密碼]"
		}
		team, err := r.auth.LoginTeam(ctx, userID, strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, model.ErrInvalidCredentials) {
				return "隊伍密碼錯誤，請重新輸入或輸入管理員密碼。"
			}
			return r.internalError(userID, err)
		}
		return fmt.Sprintf("登入成功！您已加入隊伍 %s。", team.Name)

	case text == "管理員密碼" || hasKeyword(text, "管理員密碼"):
		parts := strings.SplitN(text, " ", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return "指令格式：管理員密碼 [您的管理員密碼]"
		}
		if _, err := r.auth.LoginRole(ctx, userID, strings.TrimSpace(parts[1])); err != nil {
			if errors.Is(err, model.ErrInvalidCredentials) {
				return "管理員密碼錯誤，請重新輸入。"
			}
			return r.internalError(userID, err)
		}
		return "管理員登入成功！您現在擁有管理員權限。"

	default:
		return "請先輸入密碼登入 (例如：密碼 [您的隊伍密碼] 或 管理員密碼 [您的管理員密碼])。"
	}
}

// Team commands

func (r *Router) handleTeam(ctx context.Context, userID string, identity model.Identity, text string) string {
	team, err := r.storage.GetTeam(ctx, identity.TeamID)
	if err != nil {
		return r.internalError(userID, err)
	}

	switch {
	case text == "我的隊伍":
		return fmt.Sprintf("您的隊伍是：%s", team.Name)

	case hasKeyword(text, "完成任務"):
		parts := strings.SplitN(text, " ", 2)
		if len(parts) != 2 {
			return "請輸入有效的任務代碼 (例如：完成任務 M001)。"
		}
		code := strings.ToUpper(strings.TrimSpace(parts[1]))
		m, alreadyDone, err := r.missions.Complete(ctx, code, team.Name)
		if err != nil {
			if errors.Is(err, model.ErrMissionNotFound) {
				return "任務代碼無效，請檢查後重試。"
			}
			return r.internalError(userID, err)
		}
		if alreadyDone {
			return fmt.Sprintf("任務 '%s' 已經被隊伍 %s 完成了。", m.Name, m.CompletedBy)
		}
		return fmt.Sprintf("任務 '%s' 已成功標記為完成！", m.Name)

	case text == "查看任務":
		return r.missionList(ctx, userID, "目前任務列表：\n")

	case hasKeyword(text, "新增卡牌"):
		card, qty, errReply := r.parseCardQty(text, "指令格式：新增卡牌 [卡片名稱] [數量]")
		if errReply != "" {
			return errReply
		}
		added, err := r.inventory.Add(ctx, team.ID, card, qty)
		if err != nil {
			return r.inventoryErrorReply(userID, card, err)
		}
		return fmt.Sprintf("已為 %s 新增 %s x%d。", team.Name, added.DisplayName(), qty)

	case hasKeyword(text, "刪除卡牌"):
		card, qty, errReply := r.parseCardQty(text, "指令格式：刪除卡牌 [卡片名稱] [數量]")
		if errReply != "" {
			return errReply
		}
		removed, err := r.inventory.Remove(ctx, team.ID, card, qty)
		if err != nil {
			return r.inventoryErrorReply(userID, card, err)
		}
		return fmt.Sprintf("已從 %s 刪除 %s x%d。", team.Name, removed.DisplayName(), qty)

	case text == "查看卡牌":
		lines, err := r.inventory.List(ctx, team.ID)
		if err != nil {
			return r.internalError(userID, err)
		}
		if len(lines) == 0 {
			return fmt.Sprintf("%s 目前沒有任何卡牌。", team.Name)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s 的卡牌列表：\n", team.Name)
		for _, line := range lines {
			fmt.Fprintf(&b, "%s: %d\n", line.Card.DisplayName(), line.Quantity)
		}
		return b.String()

	case text == "登出":
		r.auth.Logout(userID)
		return "已登出。"

	case hasKeyword(text, "交換"):
		// Trades are admin-only
		return "您沒有權限執行交換，此指令僅限管理員使用。"

	default:
		return "您已登入為隊伍。可用的指令有：\n" +
			"1. 我的隊伍\n" +
			"2. 完成任務 [任務代碼]\n" +
			"3. 查看任務\n" +
			"4. 新增卡牌 [卡片名稱] [數量]\n" +
			"5. 刪除卡牌 [卡片名稱] [數量]\n" +
			"6. 查看卡牌\n" +
			"7. 登出"
	}
}

// Admin commands

func (r *Router) handleAdmin(ctx context.Context, userID string, identity model.Identity, text string) string {
	switch {
	case text == "管理員指令":
		return "管理員指令列表：\n" +
			"1. 添加任務 [代碼] [名稱] [描述]\n" +
			"2. 查看所有任務\n" +
			"3. 重置任務 [代碼]\n" +
			"4. 查看所有隊伍\n" +
			"5. 發布公告 [時間(YYYY-MM-DD HH:MM)] [訊息]\n" +
			"6. 查看所有公告\n" +
			"7. 取消公告 [ID]\n" +
			"8. 新增 [隊伍] [卡片] [數量]\n" +
			"9. 刪除 [隊伍] [卡片] [數量]\n" +
			"10. 交換 [隊伍A] [隊伍B] [卡片A] [數量A] [卡片B] [數量B]\n" +
			"11. 登出"

	case hasKeyword(text, "添加任務"):
		parts := strings.SplitN(text, " ", 4)
		if len(parts) != 4 {
			return "請輸入有效的指令格式：添加任務 [代碼] [名稱] [描述]"
		}
		code := strings.ToUpper(parts[1])
		m, err := r.missions.Add(ctx, code, parts[2], parts[3])
		if err != nil {
			if errors.Is(err, model.ErrMissionExists) {
				return "任務代碼已存在，請使用不同的代碼。"
			}
			return r.internalError(userID, err)
		}
		return fmt.Sprintf("任務 '%s' (代碼：%s) 已添加。", m.Name, m.Code)

	case text == "查看所有任務":
		return r.missionList(ctx, userID, "所有任務列表：\n")

	case hasKeyword(text, "重置任務"):
		parts := strings.SplitN(text, " ", 2)
		if len(parts) != 2 {
			return "請輸入有效的任務代碼 (例如：重置任務 M001)。"
		}
		code := strings.ToUpper(strings.TrimSpace(parts[1]))
		m, err := r.missions.Reset(ctx, code)
		if err != nil {
			if errors.Is(err, model.ErrMissionNotFound) {
				return "任務代碼無效。"
			}
			return r.internalError(userID, err)
		}
		return fmt.Sprintf("任務 '%s' 已重置為未完成。", m.Name)

	case text == "查看所有隊伍":
		teams, err := r.storage.ListTeams(ctx)
		if err != nil {
			return r.internalError(userID, err)
		}
		if len(teams) == 0 {
			return "目前沒有任何隊伍。"
		}
		var b strings.Builder
		b.WriteString("所有隊伍列表：\n")
		for _, team := range teams {
			fmt.Fprintf(&b, "隊伍名稱：%s\n", team.Name)
		}
		return b.String()

	case hasKeyword(text, "發布公告"):
		// The schedule time itself contains a space: 發布公告 日期 時間 訊息
		parts := strings.SplitN(text, " ", 4)
		if len(parts) != 4 {
			return "請輸入有效的指令格式：發布公告 [時間(YYYY-MM-DD HH:MM)] [訊息]"
		}
		timeStr := parts[1] + " " + parts[2]
		if _, err := r.announce.Schedule(ctx, timeStr, parts[3]); err != nil {
			var parseErr *time.ParseError
			if errors.As(err, &parseErr) {
				return "時間格式無效 (應為 YYYY-MM-DD HH:MM) 或排程失敗。"
			}
			return r.internalError(userID, err)
		}
		return fmt.Sprintf("公告已成功安排於 %s 發送。", timeStr)

	case text == "查看所有公告":
		pending, err := r.announce.ListPending(ctx)
		if err != nil {
			return r.internalError(userID, err)
		}
		if len(pending) == 0 {
			return "目前沒有任何排程公告。"
		}
		var b strings.Builder
		b.WriteString("所有排程公告列表：\n")
		for _, a := range pending {
			local := a.ScheduledAt.In(r.location)
			fmt.Fprintf(&b, "ID: %d, 時間: %s, 訊息: %s\n", a.ID, local.Format(announce.TimeLayout), a.Message)
		}
		return b.String()

	case hasKeyword(text, "取消公告"):
		parts := strings.Fields(text)
		if len(parts) != 2 {
			return "請輸入有效的公告 ID (例如：取消公告 1)。"
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return "請輸入有效的公告 ID (例如：取消公告 1)。"
		}
		if err := r.announce.Cancel(ctx, model.AnnouncementID(id)); err != nil {
			if errors.Is(err, model.ErrAnnouncementNotFound) {
				return fmt.Sprintf("找不到公告 ID %d 或取消失敗。", id)
			}
			return r.internalError(userID, err)
		}
		return fmt.Sprintf("公告 ID %d 已取消並刪除。", id)

	case hasKeyword(text, "新增"):
		return r.adminAdjust(ctx, userID, identity, text, true)

	case hasKeyword(text, "刪除"):
		return r.adminAdjust(ctx, userID, identity, text, false)

	case hasKeyword(text, "交換"):
		return r.handleTrade(ctx, userID, identity, text)

	case text == "登出":
		r.auth.Logout(userID)
		return "已登出。"

	default:
		return "您已登入為管理員。輸入 '管理員指令' 查看可用指令。"
	}
}

// adminAdjust handles 新增/刪除 [隊伍] [卡片] [數量]
func (r *Router) adminAdjust(ctx context.Context, userID string, identity model.Identity, text string, add bool) string {
	usage := "指令格式：刪除 [隊伍] [卡片] [數量]"
	if add {
		usage = "指令格式：新增 [隊伍] [卡片] [數量]"
	}

	parts := strings.Fields(text)
	if len(parts) != 4 {
		return usage
	}
	qty, err := strconv.Atoi(parts[3])
	if err != nil {
		return usage
	}
	if qty <= 0 {
		return "數量必須為正整數。"
	}

	team, err := r.storage.GetTeamByName(ctx, parts[1])
	if err != nil {
		if errors.Is(err, model.ErrTeamNotFound) {
			return fmt.Sprintf("找不到隊伍：%s", parts[1])
		}
		return r.internalError(userID, err)
	}
	if !identity.CanActOn(team.ID) {
		return "您沒有權限操作此隊伍。"
	}

	if add {
		card, err := r.inventory.Add(ctx, team.ID, parts[2], qty)
		if err != nil {
			return r.inventoryErrorReply(userID, parts[2], err)
		}
		return fmt.Sprintf("已為 %s 新增 %s x%d。", team.Name, card.DisplayName(), qty)
	}

	card, err := r.inventory.Remove(ctx, team.ID, parts[2], qty)
	if err != nil {
		return r.inventoryErrorReply(userID, parts[2], err)
	}
	return fmt.Sprintf("已從 %s 刪除 %s x%d。", team.Name, card.DisplayName(), qty)
}

// handleTrade handles 交換 [隊伍A] [隊伍B] [卡片A] [數量A] [卡片B] [數量B]
func (r *Router) handleTrade(ctx context.Context, userID string, identity model.Identity, text string) string {
	const usage = "指令格式：交換 [隊伍A] [隊伍B] [卡片A] [數量A] [卡片B] [數量B]"

	parts := strings.Fields(text)
	if len(parts) != 7 {
		return usage
	}
	qtyA, errA := strconv.Atoi(parts[4])
	qtyB, errB := strconv.Atoi(parts[6])
	if errA != nil || errB != nil {
		return usage
	}
	if qtyA <= 0 || qtyB <= 0 {
		return "數量必須為正整數。"
	}

	teamA, err := r.storage.GetTeamByName(ctx, parts[1])
	if err != nil {
		if errors.Is(err, model.ErrTeamNotFound) {
			return fmt.Sprintf("找不到隊伍：%s", parts[1])
		}
		return r.internalError(userID, err)
	}
	teamB, err := r.storage.GetTeamByName(ctx, parts[2])
	if err != nil {
		if errors.Is(err, model.ErrTeamNotFound) {
			return fmt.Sprintf("找不到隊伍：%s", parts[2])
		}
		return r.internalError(userID, err)
	}
	cardA, err := r.inventory.ResolveCard(ctx, parts[3])
	if err != nil {
		return fmt.Sprintf("找不到卡牌：%s", parts[3])
	}
	cardB, err := r.inventory.ResolveCard(ctx, parts[5])
	if err != nil {
		return fmt.Sprintf("找不到卡牌：%s", parts[5])
	}

	terms := model.TradeTerms{
		TeamA: teamA.ID,
		TeamB: teamB.ID,
		CardA: cardA.ID,
		QtyA:  qtyA,
		CardB: cardB.ID,
		QtyB:  qtyB,
	}

	result, err := r.trades.Submit(ctx, userID, identity, terms)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTradeNotAllowed), errors.Is(err, model.ErrUnauthorized):
			return "您沒有權限操作這些隊伍。"
		case errors.Is(err, model.ErrSameTeamTrade):
			return "無法讓隊伍與自己交換。"
		case errors.Is(err, model.ErrUnbalancedSwap):
			return "相同卡牌的交換數量必須相等。"
		case errors.Is(err, model.ErrInsufficientQuantity):
			return "交換失敗：隊伍持有的卡牌數量不足。"
		case errors.Is(err, model.ErrInvalidQuantity):
			return "數量必須為正整數。"
		default:
			return r.internalError(userID, err)
		}
	}

	switch result.Outcome {
	case trade.OutcomeCreated:
		return fmt.Sprintf("交換提案已建立，請另一位管理員在 %d 秒內輸入相同指令以確認。",
			int(r.trades.Window().Seconds()))
	case trade.OutcomeAlreadyConfirmed:
		return "您已確認過此交換提案，請等待另一位管理員輸入相同指令。"
	default:
		return fmt.Sprintf("✅ 交換完成：%s 獲得 %s x%d，%s 獲得 %s x%d。",
			teamA.Name, cardB.DisplayName(), qtyB,
			teamB.Name, cardA.DisplayName(), qtyA)
	}
}

// Shared helpers

// missionList renders all missions with completion details
func (r *Router) missionList(ctx context.Context, userID, header string) string {
	missions, err := r.missions.List(ctx)
	if err != nil {
		return r.internalError(userID, err)
	}
	if len(missions) == 0 {
		return "目前沒有任何任務。"
	}

	var b strings.Builder
	b.WriteString(header)
	for _, m := range missions {
		status := "⏳ 未完成"
		if m.Completed {
			status = "✅ 已完成"
		}
		fmt.Fprintf(&b, "代碼：%s, 名稱：%s, 狀態：%s\n", m.Code, m.Name, status)
		if m.Completed && m.CompletedAt != nil {
			local := m.CompletedAt.In(r.location)
			fmt.Fprintf(&b, "  完成時間：%s, 完成隊伍：%s\n", local.Format(announce.TimeLayout), m.CompletedBy)
		}
	}
	return b.String()
}

// parseCardQty parses "<keyword> <card> <qty>" commands
func (r *Router) parseCardQty(text, usage string) (card string, qty int, errReply string) {
	parts := strings.Fields(text)
	if len(parts) != 3 {
		return "", 0, usage
	}
	qty, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, usage
	}
	if qty <= 0 {
		return "", 0, "數量必須為正整數。"
	}
	return parts[1], qty, ""
}

// inventoryErrorReply maps ledger errors to replies
func (r *Router) inventoryErrorReply(userID, cardKey string, err error) string {
	switch {
	case errors.Is(err, model.ErrCardNotFound):
		return fmt.Sprintf("找不到卡牌：%s", cardKey)
	case errors.Is(err, model.ErrInsufficientQuantity):
		return "卡牌數量不足或不存在。"
	case errors.Is(err, model.ErrInvalidQuantity):
		return "數量必須為正整數。"
	default:
		return r.internalError(userID, err)
	}
}

const replyInternalError = "系統發生錯誤，請稍後再試。"

// internalError logs an unexpected fault and returns the generic reply
func (r *Router) internalError(userID string, err error) string {
	r.logger.Error("command handling failed",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	return replyInternalError
}

// hasKeyword reports whether text starts with the keyword followed by an
// argument separator. Keyword matching is case-insensitive for the latin
// letters some clients capitalize.
func hasKeyword(text, keyword string) bool {
	return strings.HasPrefix(strings.ToLower(text), strings.ToLower(keyword)+" ")
}
