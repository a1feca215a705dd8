package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/tradegame-bot/internal/dependencies/mocks"
	"github.com/mcoot/tradegame-bot/internal/dependencies/random"
	"github.com/mcoot/tradegame-bot/internal/model"
	"github.com/mcoot/tradegame-bot/internal/services/announce"
	"github.com/mcoot/tradegame-bot/internal/services/auth"
	"github.com/mcoot/tradegame-bot/internal/services/inventory"
	"github.com/mcoot/tradegame-bot/internal/services/mission"
	"github.com/mcoot/tradegame-bot/internal/services/trade"
	"github.com/mcoot/tradegame-bot/internal/session"
	"github.com/mcoot/tradegame-bot/internal/storage/memory"
	"github.com/mcoot/tradegame-bot/internal/testutil"
)

// Precomputed at suite setup; bcrypt cost is lowered to keep the suite fast
var testHashes map[string]string

type RouterSuite struct {
	suite.Suite
	storage  *memory.Storage
	sessions *session.MemoryStore
	platform *mocks.MockPlatform
	clock    *mocks.MockClock
	router   *Router
	ctx      context.Context
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupSuite() {
	testHashes = make(map[string]string)
	for _, pw := range []string{"team1pw", "team2pw", "gmpw", "scopedpw", "orgpw"} {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		s.Require().NoError(err)
		testHashes[pw] = string(hash)
	}
}

func (s *RouterSuite) SetupTest() {
	s.storage = memory.New()
	s.sessions = session.NewMemoryStore()
	s.platform = mocks.NewMockPlatform()
	s.clock = mocks.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	s.ctx = context.Background()

	logger := testutil.NopLogger()
	rnd := random.New()

	authService := auth.New(s.storage, s.sessions, s.clock, rnd, logger)
	inventoryService := inventory.New(s.storage, logger)
	missionService := mission.New(s.storage, s.clock, logger)
	announceService := announce.New(s.storage, s.sessions, s.platform, s.clock, logger)
	tradeEngine := trade.NewEngine(s.storage, s.platform, s.clock, rnd, logger, trade.DefaultConfig())

	s.router = NewRouter(s.storage, authService, inventoryService, missionService, announceService, tradeEngine, logger)

	s.Require().NoError(s.storage.SaveTeam(s.ctx, &model.Team{
		ID: "team_1", Name: "小隊1", PasswordHash: testHashes["team1pw"],
	}))
	s.Require().NoError(s.storage.SaveTeam(s.ctx, &model.Team{
		ID: "team_2", Name: "小隊2", PasswordHash: testHashes["team2pw"],
	}))
	s.Require().NoError(s.storage.SaveRoleCredential(s.ctx, &model.RoleCredential{
		ID: "cred_gm", Role: model.RoleGameMaster, PasswordHash: testHashes["gmpw"],
	}))
	s.Require().NoError(s.storage.SaveRoleCredential(s.ctx, &model.RoleCredential{
		ID: "cred_scoped", Role: model.RoleGameMaster, PasswordHash: testHashes["scopedpw"],
		Scope: model.NewScope("team_1"),
	}))
	s.Require().NoError(s.storage.SaveRoleCredential(s.ctx, &model.RoleCredential{
		ID: "cred_org", Role: model.RoleOrganizer, PasswordHash: testHashes["orgpw"],
	}))
	s.Require().NoError(s.storage.SaveCard(s.ctx, &model.Card{
		ID: "card_16", Number: "16", NameZH: "紅寶石", NameEN: "Ruby",
	}))
	s.Require().NoError(s.storage.SaveCard(s.ctx, &model.Card{
		ID: "card_2", Number: "2", NameZH: "藍寶石", NameEN: "Sapphire",
	}))
}

func (s *RouterSuite) handle(userID, text string) string {
	return s.router.Handle(s.ctx, userID, text)
}

func (s *RouterSuite) loginTeam1(userID string) {
	reply := s.handle(userID, "密碼 team1pw")
	s.Require().Contains(reply, "登入成功")
}

func (s *RouterSuite) loginGM(userID string) {
	reply := s.handle(userID, "管理員密碼 gmpw")
	s.Require().Contains(reply, "管理員登入成功")
}

// Login flow

func (s *RouterSuite) TestGuestPrompt() {
	reply := s.handle("u1", "hello")
	s.Contains(reply, "請先輸入密碼登入")
}

func (s *RouterSuite) TestTeamLogin() {
	reply := s.handle("u1", "密碼 team1pw")
	s.Contains(reply, "小隊1")

	reply = s.handle("u1", "我的隊伍")
	s.Equal("您的隊伍是：小隊1", reply)
}

func (s *RouterSuite) TestTeamLoginWrongPassword() {
	reply := s.handle("u1", "密碼 nope")
	s.Contains(reply, "隊伍密碼錯誤")

	// Still a guest
	reply = s.handle("u1", "我的隊伍")
	s.Contains(reply, "請先輸入密碼登入")
}

func (s *RouterSuite) TestAdminLogin() {
	reply := s.handle("u1", "管理員密碼 gmpw")
	s.Contains(reply, "管理員登入成功")
}

func (s *RouterSuite) TestAdminLoginWrongPassword() {
	reply := s.handle("u1", "管理員密碼 nope")
	s.Contains(reply, "管理員密碼錯誤")
}

func (s *RouterSuite) TestLoginUsage() {
	s.Equal("指令格式：密碼 [您的隊伍密碼]", s.handle("u1", "密碼"))
	s.Equal("指令格式：管理員密碼 [您的管理員密碼]", s.handle("u1", "管理員密碼"))
}

func (s *RouterSuite) TestLogout() {
	s.loginTeam1("u1")
	s.Equal("已登出。", s.handle("u1", "登出"))
	s.Contains(s.handle("u1", "我的隊伍"), "請先輸入密碼登入")
}

// Team commands

func (s *RouterSuite) TestTeamHelpFallback() {
	s.loginTeam1("u1")
	reply := s.handle("u1", "不存在的指令")
	s.Contains(reply, "我的隊伍")
	s.Contains(reply, "完成任務")
	s.Contains(reply, "登出")
}

func (s *RouterSuite) TestTeamCardLifecycle() {
	s.loginTeam1("u1")

	reply := s.handle("u1", "新增卡牌 16 3")
	s.Contains(reply, "紅寶石")
	s.Contains(reply, "x3")

	reply = s.handle("u1", "查看卡牌")
	s.Contains(reply, "紅寶石: 3")

	reply = s.handle("u1", "刪除卡牌 紅寶石 3")
	s.Contains(reply, "已從 小隊1 刪除")

	reply = s.handle("u1", "查看卡牌")
	s.Equal("小隊1 目前沒有任何卡牌。", reply)
}

func (s *RouterSuite) TestTeamCardUsageAndValidation() {
	s.loginTeam1("u1")

	s.Equal("指令格式：新增卡牌 [卡片名稱] [數量]", s.handle("u1", "新增卡牌 16"))
	s.Equal("指令格式：新增卡牌 [卡片名稱] [數量]", s.handle("u1", "新增卡牌 16 abc"))
	s.Equal("數量必須為正整數。", s.handle("u1", "新增卡牌 16 0"))
	s.Equal("找不到卡牌：99", s.handle("u1", "新增卡牌 99 1"))
}

func (s *RouterSuite) TestTeamRemoveMoreThanHeld() {
	s.loginTeam1("u1")
	s.handle("u1", "新增卡牌 16 1")

	reply := s.handle("u1", "刪除卡牌 16 5")
	s.Equal("卡牌數量不足或不存在。", reply)
}

func (s *RouterSuite) TestTeamMissionFlow() {
	s.loginGM("admin")
	s.handle("admin", "添加任務 M001 尋寶 找到隱藏的寶物")

	s.loginTeam1("u1")
	reply := s.handle("u1", "完成任務 m001")
	s.Equal("任務 '尋寶' 已成功標記為完成！", reply)

	// A second team sees who got there first
	s.handle("u2", "密碼 team2pw")
	reply = s.handle("u2", "完成任務 M001")
	s.Equal("任務 '尋寶' 已經被隊伍 小隊1 完成了。", reply)

	reply = s.handle("u1", "查看任務")
	s.Contains(reply, "代碼：M001")
	s.Contains(reply, "✅ 已完成")
	s.Contains(reply, "完成隊伍：小隊1")
}

func (s *RouterSuite) TestTeamMissionInvalidCode() {
	s.loginTeam1("u1")
	s.Equal("任務代碼無效，請檢查後重試。", s.handle("u1", "完成任務 M404"))
}

func (s *RouterSuite) TestTeamCannotTrade() {
	s.loginTeam1("u1")
	reply := s.handle("u1", "交換 小隊1 小隊2 16 1 2 1")
	s.Contains(reply, "僅限管理員")
}

// Admin commands

func (s *RouterSuite) TestAdminHelp() {
	s.loginGM("admin")
	reply := s.handle("admin", "管理員指令")
	s.Contains(reply, "添加任務")
	s.Contains(reply, "發布公告")
	s.Contains(reply, "交換")
}

func (s *RouterSuite) TestAdminFallback() {
	s.loginGM("admin")
	s.Contains(s.handle("admin", "亂打"), "管理員指令")
}

func (s *RouterSuite) TestAdminMissionManagement() {
	s.loginGM("admin")

	reply := s.handle("admin", "添加任務 M001 尋寶 找到隱藏的寶物")
	s.Equal("任務 '尋寶' (代碼：M001) 已添加。", reply)

	s.Equal("任務代碼已存在，請使用不同的代碼。", s.handle("admin", "添加任務 M001 重複 x"))

	s.loginTeam1("u1")
	s.handle("u1", "完成任務 M001")

	reply = s.handle("admin", "重置任務 M001")
	s.Equal("任務 '尋寶' 已重置為未完成。", reply)

	reply = s.handle("admin", "查看所有任務")
	s.Contains(reply, "⏳ 未完成")
}

func (s *RouterSuite) TestAdminListTeams() {
	s.loginGM("admin")
	reply := s.handle("admin", "查看所有隊伍")
	s.Contains(reply, "小隊1")
	s.Contains(reply, "小隊2")
}

func (s *RouterSuite) TestAdminAnnouncementFlow() {
	s.loginGM("admin")

	reply := s.handle("admin", "發布公告 2025-06-01 20:00 晚上八點集合")
	s.Equal("公告已成功安排於 2025-06-01 20:00 發送。", reply)

	reply = s.handle("admin", "查看所有公告")
	s.Contains(reply, "ID: 1")
	s.Contains(reply, "2025-06-01 20:00")
	s.Contains(reply, "晚上八點集合")

	reply = s.handle("admin", "取消公告 1")
	s.Equal("公告 ID 1 已取消並刪除。", reply)

	s.Equal("目前沒有任何排程公告。", s.handle("admin", "查看所有公告"))
	s.Contains(s.handle("admin", "取消公告 1"), "找不到公告 ID 1")
}

func (s *RouterSuite) TestAdminAnnouncementBadTime() {
	s.loginGM("admin")
	reply := s.handle("admin", "發布公告 今晚 八點 集合")
	s.Contains(reply, "時間格式無效")
}

func (s *RouterSuite) TestAdminAdjustInventory() {
	s.loginGM("admin")

	reply := s.handle("admin", "新增 小隊1 16 5")
	s.Equal("已為 小隊1 新增 紅寶石 x5。", reply)

	reply = s.handle("admin", "刪除 小隊1 紅寶石 2")
	s.Equal("已從 小隊1 刪除 紅寶石 x2。", reply)

	s.loginTeam1("u1")
	s.Contains(s.handle("u1", "查看卡牌"), "紅寶石: 3")
}

func (s *RouterSuite) TestAdminAdjustUnknownTeam() {
	s.loginGM("admin")
	s.Equal("找不到隊伍：小隊9", s.handle("admin", "新增 小隊9 16 5"))
}

func (s *RouterSuite) TestScopedGMDeniedOutsideScope() {
	reply := s.handle("admin", "管理員密碼 scopedpw")
	s.Require().Contains(reply, "管理員登入成功")

	s.Contains(s.handle("admin", "新增 小隊1 16 5"), "已為 小隊1 新增")
	s.Equal("您沒有權限操作此隊伍。", s.handle("admin", "新增 小隊2 16 5"))
}

// Trade commands

func (s *RouterSuite) seedTradeInventory() {
	s.loginGM("gm-seeder")
	s.handle("gm-seeder", "新增 小隊1 16 5")
	s.handle("gm-seeder", "新增 小隊2 2 5")
	s.handle("gm-seeder", "登出")
}

func (s *RouterSuite) TestTradeDualConfirmation() {
	s.seedTradeInventory()
	s.loginGM("gm-1")
	s.handle("gm-2", "管理員密碼 orgpw")

	reply := s.handle("gm-1", "交換 小隊1 小隊2 16 2 2 1")
	s.Contains(reply, "交換提案已建立")
	s.Contains(reply, "60 秒")

	// A repeat from the proposer is a no-op
	reply = s.handle("gm-1", "交換 小隊1 小隊2 16 2 2 1")
	s.Contains(reply, "您已確認過此交換提案")

	// The second admin's identical command settles it
	reply = s.handle("gm-2", "交換 小隊1 小隊2 16 2 2 1")
	s.Contains(reply, "交換完成")
	s.Contains(reply, "小隊1 獲得 藍寶石 x1")
	s.Contains(reply, "小隊2 獲得 紅寶石 x2")

	s.loginTeam1("u1")
	reply = s.handle("u1", "查看卡牌")
	s.Contains(reply, "紅寶石: 3")
	s.Contains(reply, "藍寶石: 1")
}

func (s *RouterSuite) TestTradeExpiresWithoutConfirmation() {
	s.seedTradeInventory()
	s.loginGM("gm-1")
	s.handle("gm-2", "管理員密碼 orgpw")

	s.handle("gm-1", "交換 小隊1 小隊2 16 2 2 1")
	s.clock.Advance(61 * time.Second)

	// Too late: the command opens a fresh proposal instead of settling
	reply := s.handle("gm-2", "交換 小隊1 小隊2 16 2 2 1")
	s.Contains(reply, "交換提案已建立")
}

func (s *RouterSuite) TestTradeScopedGMDenied() {
	s.seedTradeInventory()
	s.handle("admin", "管理員密碼 scopedpw")

	reply := s.handle("admin", "交換 小隊1 小隊2 16 2 2 1")
	s.Equal("您沒有權限操作這些隊伍。", reply)
}

func (s *RouterSuite) TestTradeValidationReplies() {
	s.seedTradeInventory()
	s.loginGM("admin")

	s.Equal("指令格式：交換 [隊伍A] [隊伍B] [卡片A] [數量A] [卡片B] [數量B]",
		s.handle("admin", "交換 小隊1 小隊2 16 2"))
	s.Equal("找不到隊伍：小隊9", s.handle("admin", "交換 小隊9 小隊2 16 2 2 1"))
	s.Equal("找不到卡牌：99", s.handle("admin", "交換 小隊1 小隊2 99 2 2 1"))
	s.Equal("無法讓隊伍與自己交換。", s.handle("admin", "交換 小隊1 小隊1 16 2 2 1"))
	s.Equal("相同卡牌的交換數量必須相等。", s.handle("admin", "交換 小隊1 小隊2 16 2 16 3"))
	s.Equal("數量必須為正整數。", s.handle("admin", "交換 小隊1 小隊2 16 0 2 1"))
	s.Equal("交換失敗：隊伍持有的卡牌數量不足。", s.handle("admin", "交換 小隊1 小隊2 16 99 2 1"))
}
