package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/core/view"
)

// 命令名称（展示层发来的 JSON 中的 cmd 字段）
const (
	CmdExchange      = "exchange"
	CmdQuery         = "query"
	CmdFavoritesOnly = "favorites_only"
	CmdSort          = "sort"
	CmdFavorite      = "favorite"
	CmdDetail        = "detail"
	CmdRowVisible    = "row_visible"
	CmdVisible       = "visible"
	CmdRefresh       = "refresh"
)

// Command 展示层命令
// 例如 {"cmd":"sort","key":"gapPct"}、{"cmd":"query","value":"btc"}、{"cmd":"visible","on":false}
type Command struct {
	// Cmd 命令名称
	Cmd string `json:"cmd"`
	// Key 排序键或行键
	Key string `json:"key,omitempty"`
	// Value 搜索词或交易所
	Value string `json:"value,omitempty"`
	// On 开关值，为空时按命令默认处理
	On *bool `json:"on,omitempty"`
}

// Dispatch 执行一条命令
func (a *App) Dispatch(cmd Command) error {
	switch cmd.Cmd {
	case CmdExchange:
		name := cmd.Value
		if name == "" {
			name = cmd.Key
		}
		return a.SelectExchange(name)
	case CmdQuery:
		a.SetQuery(cmd.Value)
	case CmdFavoritesOnly:
		if cmd.On == nil {
			a.ToggleFavoritesOnly()
		} else {
			a.SetFavoritesOnly(*cmd.On)
		}
	case CmdSort:
		return a.ToggleSort(cmd.Key)
	case CmdFavorite:
		a.ToggleFavorite(cmd.Key)
	case CmdDetail:
		a.ToggleDetail(cmd.Key)
	case CmdRowVisible:
		a.SetRowVisible(cmd.Key, cmd.On == nil || *cmd.On)
	case CmdVisible:
		a.SetVisible(cmd.On == nil || *cmd.On)
	case CmdRefresh:
		a.RequestRefresh(true)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Cmd)
	}
	return nil
}

// SelectExchange 切换本地交易所
// 关闭详情面板，取消旧交易所进行中的请求，用表格快照立即渲染，再强制刷新
func (a *App) SelectExchange(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := a.guards[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExchange, name)
	}

	// 快照过期时清空旧行，显示占位直到本次强制刷新完成
	rows, _ := a.deps.Table.Load(a.ctx, name)

	a.mu.Lock()
	prev := a.exchange
	if prev == name {
		a.mu.Unlock()
		return nil
	}
	a.exchange = name
	a.renderer.CloseDetails()
	a.renderer.ForgetPrices()
	a.rows.SetRows(name, rows)
	frame := a.renderLocked()
	a.publishAndUnlock(frame)

	if g, ok := a.guards[prev]; ok {
		g.Cancel()
	}
	a.logger.Info("切换交易所", zap.String("from", prev), zap.String("to", name))
	a.RequestRefresh(true)
	return nil
}

// SetQuery 设置搜索词
func (a *App) SetQuery(q string) {
	a.mu.Lock()
	a.view.Query = strings.TrimSpace(q)
	a.renderer.CloseDetails()
	a.publishAndUnlock(a.renderLocked())
}

// SetFavoritesOnly 设置只看收藏
func (a *App) SetFavoritesOnly(on bool) {
	a.mu.Lock()
	a.view.FavoritesOnly = on
	a.renderer.CloseDetails()
	a.publishAndUnlock(a.renderLocked())
}

// ToggleFavoritesOnly 切换只看收藏
func (a *App) ToggleFavoritesOnly() {
	a.mu.Lock()
	a.view.FavoritesOnly = !a.view.FavoritesOnly
	a.renderer.CloseDetails()
	a.publishAndUnlock(a.renderLocked())
}

// ToggleSort 切换排序键或方向
func (a *App) ToggleSort(key string) error {
	if !view.ValidKey(key) {
		return fmt.Errorf("%w: %q", ErrUnknownSortKey, key)
	}
	a.mu.Lock()
	a.view.ToggleSort(key)
	a.renderer.CloseDetails()
	a.publishAndUnlock(a.renderLocked())
	return nil
}

// ToggleFavorite 切换收藏，详情面板保持展开
// 返回: 切换后是否为收藏
func (a *App) ToggleFavorite(sym string) bool {
	on := a.deps.Favorites.Toggle(context.WithoutCancel(a.ctx), sym)
	a.mu.Lock()
	a.publishAndUnlock(a.renderLocked())
	return on
}

// ToggleDetail 切换某行的详情面板
// 返回: 切换后是否为展开
func (a *App) ToggleDetail(key string) bool {
	a.mu.Lock()
	open := a.renderer.ToggleDetail(key)
	a.publishAndUnlock(a.renderLocked())
	return open
}

// SetRowVisible 记录行的可见性，只影响补丁模式下的更新范围，不触发渲染
func (a *App) SetRowVisible(key string, visible bool) {
	a.mu.Lock()
	a.renderer.SetVisible(key, visible)
	a.mu.Unlock()
}

// View 当前过滤与排序状态
func (a *App) View() view.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// OpenDetails 已展开的详情面板
func (a *App) OpenDetails() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.renderer.OpenDetails()
}
