// Package tui 终端展示层：把渲染帧应用到 tview 表格，并把按键转换为视图命令。
//
// 按键: s 切换排序键, S 反转当前排序, f 只看收藏, / 搜索, Enter 详情,
// 空格 收藏, e 切换交易所, r 强制刷新, q 退出
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"kimchi-premium-tracker/internal/app"
	"kimchi-premium-tracker/internal/core/model"
	"kimchi-premium-tracker/internal/core/view"
	"kimchi-premium-tracker/internal/feed"
)

// Dispatcher 命令接收者：本地 *app.App 或远端推送客户端
type Dispatcher interface {
	Dispatch(cmd app.Command) error
}

// DispatcherFunc 函数形式的 Dispatcher
type DispatcherFunc func(cmd app.Command) error

// Dispatch 实现 Dispatcher
func (f DispatcherFunc) Dispatch(cmd app.Command) error { return f(cmd) }

// Options 界面选项
type Options struct {
	// Exchanges e 键循环切换的交易所
	Exchanges []string
	// OnQuit 按 q 退出时回调
	OnQuit func()
	// Screen 自定义屏幕（测试使用模拟屏幕）
	Screen tcell.Screen
}

type column struct {
	title   string
	sortKey string
	align   int
}

var columns = []column{
	{"", "", tview.AlignCenter},
	{"코인", view.KeySymbol, tview.AlignLeft},
	{"이름", view.KeyName, tview.AlignLeft},
	{"현재가", view.KeyPriceLocal, tview.AlignRight},
	{"해외가", "", tview.AlignRight},
	{"전일대비", view.KeyChange24hPct, tview.AlignRight},
	{"김프", view.KeyGapPct, tview.AlignRight},
	{"거래대금", view.KeyVolumeLocal, tview.AlignRight},
	{"해외거래대금", view.KeyVolumeReferenceLocal, tview.AlignRight},
	{"시가총액", view.KeyMarketCapLocal, tview.AlignRight},
}

// UI 终端界面，实现 app.Presenter
type UI struct {
	target Dispatcher
	opts   Options
	logger *zap.Logger

	app    *tview.Application
	header *tview.TextView
	table  *tview.Table
	detail *tview.TextView
	input  *tview.InputField
	status *tview.TextView
	root   *tview.Flex

	mu     sync.Mutex
	mirror *feed.Table
	dirty  chan struct{}
}

// New 创建终端界面
// 参数 target: 命令接收者
// 参数 opts: 界面选项
// 参数 logger: 日志记录器
func New(target Dispatcher, opts Options, logger *zap.Logger) *UI {
	if logger == nil {
		logger = zap.NewNop()
	}
	u := &UI{
		target: target,
		opts:   opts,
		logger: logger.Named("tui"),
		app:    tview.NewApplication(),
		mirror: feed.NewTable(),
		dirty:  make(chan struct{}, 1),
	}
	if opts.Screen != nil {
		u.app.SetScreen(opts.Screen)
	}

	u.header = tview.NewTextView().SetDynamicColors(true)
	u.table = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	u.table.SetBorder(true)
	u.detail = tview.NewTextView().SetDynamicColors(true)
	u.status = tview.NewTextView().SetDynamicColors(true)
	u.input = tview.NewInputField().SetLabel("검색: ")
	u.input.SetDoneFunc(u.onSearchDone)

	u.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(u.header, 3, 0, false).
		AddItem(u.table, 0, 1, true).
		AddItem(u.detail, 4, 0, false).
		AddItem(u.input, 1, 0, false).
		AddItem(u.status, 1, 0, false)
	u.app.SetRoot(u.root, true).SetFocus(u.table)
	u.app.SetInputCapture(u.handleKey)

	u.redraw()
	return u
}

// Present 应用一帧（实现 app.Presenter），重绘在界面线程合并执行
func (u *UI) Present(frame model.Frame) {
	u.mu.Lock()
	u.mirror.Apply(frame)
	u.mu.Unlock()

	select {
	case u.dirty <- struct{}{}:
	default:
	}
}

// Prime 注册为展示层之后用当前完整画面初始化
// 已收到更新的帧时忽略
func (u *UI) Prime(frame model.Frame) {
	u.mu.Lock()
	stale := frame.Seq < u.mirror.Seq()
	if !stale {
		u.mirror.Apply(frame)
	}
	u.mu.Unlock()

	if !stale {
		select {
		case u.dirty <- struct{}{}:
		default:
		}
	}
}

// Run 运行界面直到 ctx 取消或按 q
func (u *UI) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, u.app.Stop)
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-u.dirty:
				u.app.QueueUpdateDraw(u.redraw)
			}
		}
	}()

	if err := u.app.Run(); err != nil {
		return fmt.Errorf("终端界面运行失败: %w", err)
	}
	return nil
}

// Stop 停止界面
func (u *UI) Stop() {
	u.app.Stop()
}

// redraw 按镜像重建表头与表格，须在界面线程调用
func (u *UI) redraw() {
	u.mu.Lock()
	rows := u.mirror.Rows()
	exchange := u.mirror.Exchange()
	sortKey, sortDir := u.mirror.Sort()
	title := u.mirror.Title()
	summary := u.mirror.Summary()
	metrics := u.mirror.Metrics()
	placeholder := u.mirror.Placeholder()
	u.mu.Unlock()

	u.header.SetText(headerText(exchange, title, summary, metrics))

	selected, _ := u.table.GetSelection()
	u.table.Clear()
	for col, c := range columns {
		text := c.title
		if c.sortKey != "" && c.sortKey == sortKey {
			if sortDir == view.DirAsc {
				text += " ▲"
			} else {
				text += " ▼"
			}
		}
		u.table.SetCell(0, col, tview.NewTableCell(text).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(c.align).
			SetSelectable(false).
			SetExpansion(1))
	}

	if len(rows) == 0 {
		u.table.SetCell(1, 1, tview.NewTableCell(placeholder).SetSelectable(false))
		u.detail.SetText("")
		return
	}
	for i, r := range rows {
		for col, text := range rowTexts(r) {
			u.table.SetCell(i+1, col, tview.NewTableCell(text).
				SetTextColor(cellColor(col, r)).
				SetAlign(columns[col].align).
				SetExpansion(1))
		}
	}
	if selected < 1 || selected > len(rows) {
		selected = 1
	}
	u.table.Select(selected, 0)
	u.table.SetTitle(fmt.Sprintf(" %s (%d) ", exchange, len(rows)))
	u.detail.SetText(detailText(rows))
}

func rowTexts(r model.Cells) []string {
	star := ""
	if r.Favorite {
		star = "★"
	}
	return []string{star, r.Symbol, r.Name, r.Price, r.PriceReference, r.Change, r.Gap, r.Volume, r.VolumeReference, r.MarketCap}
}

// cellColor 国内行情惯例：上涨红色，下跌蓝色
func cellColor(col int, r model.Cells) tcell.Color {
	switch columns[col].sortKey {
	case view.KeyPriceLocal:
		switch r.PriceFlash {
		case model.FlashUp:
			return tcell.ColorRed
		case model.FlashDown:
			return tcell.ColorDodgerBlue
		}
	case view.KeyChange24hPct:
		return toneColor(r.ChangeTone)
	case view.KeyGapPct:
		return toneColor(r.GapTone)
	}
	return tview.Styles.PrimaryTextColor
}

func toneColor(tone string) tcell.Color {
	switch tone {
	case model.TonePlus:
		return tcell.ColorRed
	case model.ToneMinus:
		return tcell.ColorDodgerBlue
	}
	return tview.Styles.PrimaryTextColor
}

func headerText(exchange, title string, s model.Summary, m model.Metrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%s[-]  %s\n", exchange, title)
	fmt.Fprintf(&b, "환율 %s  USDT %s  BTC 점유율 %s  시총 %s\n", m.FxKRW, m.UsdtKRW, m.BtcDominance, m.TotalMcap)
	if s.Valid {
		fmt.Fprintf(&b, "김프 평균 %+.2f%%  최저 %s %+.2f%%  최고 %s %+.2f%%",
			s.AvgPct, s.Min.Symbol, s.Min.GapPct, s.Max.Symbol, s.Max.GapPct)
	} else {
		b.WriteString("김프 -")
	}
	return b.String()
}

func detailText(rows []model.Cells) string {
	var b strings.Builder
	for _, r := range rows {
		if !r.DetailOpen {
			continue
		}
		fmt.Fprintf(&b, "[yellow]%s[-] %s  전일대비 %s  김프 %s  시가총액 %s / %s\n",
			r.Symbol, r.Name, r.ChangeAbs, r.GapAbs, r.MarketCap, r.MarketCapUSD)
	}
	return b.String()
}

// handleKey 全局按键处理；搜索框获得焦点时不拦截
func (u *UI) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if u.app.GetFocus() == u.input {
		return ev
	}
	switch ev.Key() {
	case tcell.KeyEnter:
		if key := u.selectedKey(); key != "" {
			u.dispatch(app.Command{Cmd: app.CmdDetail, Key: key})
		}
		return nil
	case tcell.KeyRune:
	default:
		return ev
	}

	switch ev.Rune() {
	case 's':
		u.dispatch(app.Command{Cmd: app.CmdSort, Key: u.nextSortKey()})
	case 'S':
		key, _ := u.sort()
		if key == "" {
			key = view.DefaultState().SortKey
		}
		u.dispatch(app.Command{Cmd: app.CmdSort, Key: key})
	case 'f':
		u.dispatch(app.Command{Cmd: app.CmdFavoritesOnly})
	case ' ':
		if key := u.selectedKey(); key != "" {
			u.dispatch(app.Command{Cmd: app.CmdFavorite, Key: key})
		}
	case 'e':
		if next := u.nextExchange(); next != "" {
			u.dispatch(app.Command{Cmd: app.CmdExchange, Value: next})
		}
	case 'r':
		u.dispatch(app.Command{Cmd: app.CmdRefresh})
	case '/':
		u.app.SetFocus(u.input)
	case 'q':
		if u.opts.OnQuit != nil {
			u.opts.OnQuit()
		}
		u.app.Stop()
	default:
		return ev
	}
	return nil
}

func (u *UI) onSearchDone(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		u.dispatch(app.Command{Cmd: app.CmdQuery, Value: u.input.GetText()})
	case tcell.KeyEscape:
		u.input.SetText("")
		u.dispatch(app.Command{Cmd: app.CmdQuery})
	}
	u.app.SetFocus(u.table)
}

// dispatch 在后台执行命令，失败时显示在状态栏
func (u *UI) dispatch(cmd app.Command) {
	go func() {
		if err := u.target.Dispatch(cmd); err != nil {
			u.logger.Debug("命令执行失败", zap.String("cmd", cmd.Cmd), zap.Error(err))
			u.app.QueueUpdateDraw(func() {
				u.status.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
			})
		}
	}()
}

func (u *UI) selectedKey() string {
	row, _ := u.table.GetSelection()
	u.mu.Lock()
	defer u.mu.Unlock()
	rows := u.mirror.Rows()
	if row < 1 || row > len(rows) {
		return ""
	}
	return rows[row-1].Key
}

func (u *UI) sort() (string, string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.mirror.Sort()
}

// nextSortKey 按 view.SortKeys 顺序取下一个排序键
func (u *UI) nextSortKey() string {
	cur, _ := u.sort()
	if cur == "" {
		cur = view.DefaultState().SortKey
	}
	for i, k := range view.SortKeys {
		if k == cur {
			return view.SortKeys[(i+1)%len(view.SortKeys)]
		}
	}
	return view.SortKeys[0]
}

func (u *UI) nextExchange() string {
	list := u.opts.Exchanges
	if len(list) < 2 {
		return ""
	}
	u.mu.Lock()
	cur := u.mirror.Exchange()
	u.mu.Unlock()
	for i, ex := range list {
		if ex == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}
