package model

// OpKind 渲染补丁操作类型
type OpKind string

const (
	// OpReplace 整表重建：清空后按 Rows 重新构建；Rows 为空时显示 Placeholder
	OpReplace OpKind = "replace"
	// OpUpdate 原地补丁：只更新 Key 对应行的单元格内容
	OpUpdate OpKind = "update"
)

// RenderMode 渲染模式
type RenderMode string

const (
	// ModeFull 整表重建
	ModeFull RenderMode = "full"
	// ModePatch 原地补丁
	ModePatch RenderMode = "patch"
)

// Tone 数值着色类别
const (
	TonePlus  = "plus"
	ToneMinus = "minus"
	ToneZero  = "zero"
)

// Flash 价格闪烁方向
const (
	FlashUp   = "up"
	FlashDown = "down"
)

// Cells 单行的已格式化单元格内容
// 展示层直接使用，不再做任何数值计算
type Cells struct {
	// Key 行稳定键（大写 Symbol）
	Key string `json:"key"`
	// Symbol 交易所本地代码
	Symbol string `json:"symbol"`
	// Name 显示名称
	Name string `json:"name"`
	// Favorite 是否已收藏
	Favorite bool `json:"favorite"`
	// DetailOpen 该行详情面板是否展开
	DetailOpen bool `json:"detail_open,omitempty"`

	// Price 本地价格
	Price string `json:"price"`
	// PriceReference 参考价格（本地货币）
	PriceReference string `json:"price_reference"`
	// PriceFlash 价格变动方向: up, down 或空
	PriceFlash string `json:"price_flash,omitempty"`

	// Change 24 小时涨跌幅
	Change string `json:"change"`
	// ChangeTone 涨跌幅着色
	ChangeTone string `json:"change_tone"`
	// ChangeAbs 24 小时涨跌额
	ChangeAbs string `json:"change_abs"`

	// Gap 价差百分比，不可计算时为空
	Gap string `json:"gap"`
	// GapTone 价差着色
	GapTone string `json:"gap_tone"`
	// GapAbs 价差绝对值
	GapAbs string `json:"gap_abs"`

	// Volume 本地成交额（紧凑格式）
	Volume string `json:"volume"`
	// VolumeReference 参考成交额（紧凑格式）
	VolumeReference string `json:"volume_reference"`

	// MarketCap 本地货币市值
	MarketCap string `json:"market_cap"`
	// MarketCapUSD 参考货币市值
	MarketCapUSD string `json:"market_cap_usd"`
}

// PatchOp 单条渲染补丁操作
type PatchOp struct {
	// Op 操作类型: replace, update
	Op OpKind `json:"op"`
	// Key 目标行键（仅 update）
	Key string `json:"key,omitempty"`
	// Rows 整表重建的全部行（仅 replace）
	Rows []Cells `json:"rows,omitempty"`
	// Placeholder 空表占位文案（仅 replace 且无行）
	Placeholder string `json:"placeholder,omitempty"`
	// Cells 目标行的新单元格内容（仅 update）
	Cells *Cells `json:"cells,omitempty"`
}

// GapExtreme 价差极值对应的资产
type GapExtreme struct {
	// Symbol 资产代码
	Symbol string `json:"symbol"`
	// GapPct 价差百分比
	GapPct float64 `json:"gap_pct"`
}

// Summary 实时价差概要（平均/最小/最大）
type Summary struct {
	// Valid 是否有足够样本
	Valid bool `json:"valid"`
	// Count 参与统计的行数
	Count int `json:"count"`
	// AvgPct 平均价差
	AvgPct float64 `json:"avg_pct"`
	// Min 最小价差行
	Min GapExtreme `json:"min"`
	// Max 最大价差行
	Max GapExtreme `json:"max"`
}

// Metrics 顶部慢速指标的展示文本
type Metrics struct {
	// FxKRW 美元/韩元汇率
	FxKRW string `json:"fx_krw"`
	// FxSource 汇率来源
	FxSource string `json:"fx_source,omitempty"`
	// UsdtKRW USDT/韩元价格
	UsdtKRW string `json:"usdt_krw"`
	// BtcDominance BTC 市值占比
	BtcDominance string `json:"btc_dominance"`
	// TotalMcap 加密货币总市值（本地货币）
	TotalMcap string `json:"total_mcap"`
	// SpotVolume 现货成交额（本地货币）
	SpotVolume string `json:"spot_volume"`
	// DerivVolume 衍生品成交额（本地货币）
	DerivVolume string `json:"deriv_volume"`
}

// Frame 一次渲染的完整输出，由展示层应用
type Frame struct {
	// Seq 帧序号（单调递增）
	Seq uint64 `json:"seq"`
	// Mode 渲染模式: full, patch
	Mode RenderMode `json:"mode"`
	// Exchange 当前选择的本地交易所
	Exchange string `json:"exchange"`
	// SortKey 当前排序键（未排序过时为空）
	SortKey string `json:"sort_key,omitempty"`
	// SortDir 当前排序方向: asc, desc
	SortDir string `json:"sort_dir,omitempty"`
	// Ops 补丁操作列表
	Ops []PatchOp `json:"ops"`
	// Summary 实时价差概要
	Summary Summary `json:"summary"`
	// Title 页面标题（BTC 价格与涨跌）
	Title string `json:"title"`
	// Metrics 顶部指标
	Metrics Metrics `json:"metrics"`
}
