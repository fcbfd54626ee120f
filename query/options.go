package query

// TrackingBehavior 实体跟踪行为，由数据源适配器解释
type TrackingBehavior int

const (
	TrackAll TrackingBehavior = iota
	NoTracking
	NoTrackingWithIdentityResolution
)

func (b TrackingBehavior) String() string {
	switch b {
	case NoTracking:
		return "no_tracking"
	case NoTrackingWithIdentityResolution:
		return "no_tracking_with_identity_resolution"
	default:
		return "track_all"
	}
}

// SplittingBehavior 关联加载时单条查询还是拆分查询
type SplittingBehavior int

const (
	SingleQuery SplittingBehavior = iota
	SplitQuery
)

func (b SplittingBehavior) String() string {
	if b == SplitQuery {
		return "split_query"
	}
	return "single_query"
}

// Options 透传给数据源的开关，nil 表示未设置，由数据源采用默认值。
type Options struct {
	Tracking           *TrackingBehavior
	Splitting          *SplittingBehavior
	IgnoreQueryFilters *bool
	IgnoreAutoIncludes *bool
}

// IgnoresQueryFilters 是否忽略全局过滤器
func (o Options) IgnoresQueryFilters() bool {
	return o.IgnoreQueryFilters != nil && *o.IgnoreQueryFilters
}

// IgnoresAutoIncludes 是否忽略自动关联
func (o Options) IgnoresAutoIncludes() bool {
	return o.IgnoreAutoIncludes != nil && *o.IgnoreAutoIncludes
}

// TrackingOr 返回跟踪行为，未设置时返回 def
func (o Options) TrackingOr(def TrackingBehavior) TrackingBehavior {
	if o.Tracking == nil {
		return def
	}
	return *o.Tracking
}

// SplittingOr 返回拆分行为，未设置时返回 def
func (o Options) SplittingOr(def SplittingBehavior) SplittingBehavior {
	if o.Splitting == nil {
		return def
	}
	return *o.Splitting
}

func (o Options) clone() Options {
	return Options{
		Tracking:           clonePtr(o.Tracking),
		Splitting:          clonePtr(o.Splitting),
		IgnoreQueryFilters: clonePtr(o.IgnoreQueryFilters),
		IgnoreAutoIncludes: clonePtr(o.IgnoreAutoIncludes),
	}
}

func clonePtr[V any](p *V) *V {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
