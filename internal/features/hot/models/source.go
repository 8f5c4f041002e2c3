package models

// SourceDefinition is the static metadata of a supported source
type SourceDefinition struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	AllowedParams []string `json:"allowedParams"`
}

// CompatRoute describes one legacy /<source> endpoint
type CompatRoute struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

var sourceDefinitions = []SourceDefinition{
	{ID: "douyin", Title: "抖音", Type: "热点榜", Description: "抖音热点", Category: "综合"},
	{ID: "kuaishou", Title: "快手", Type: "热点榜", Description: "快手热点", Category: "综合"},
	{ID: "weibo", Title: "微博", Type: "热搜榜", Description: "实时热点榜单", Category: "综合"},
	{ID: "zhihu", Title: "知乎", Type: "热榜", Description: "知乎热榜", Category: "社区"},
	{ID: "baidu", Title: "百度", Type: "热搜榜", Description: "百度热搜", Category: "综合"},
	{ID: "bilibili", Title: "哔哩哔哩", Type: "热门榜", Description: "B 站热门内容", Category: "社区"},
	{ID: "36kr", Title: "36 氪", Type: "热榜", Description: "36kr 热门资讯", Category: "科技"},
	{ID: "toutiao", Title: "今日头条", Type: "热榜", Description: "头条热门榜", Category: "综合"},
	{ID: "v2ex", Title: "V2EX", Type: "主题榜", Description: "V2EX 热门主题", Category: "社区"},
}

// Sources returns a copy of the catalogue in declaration order
func Sources() []SourceDefinition {
	out := make([]SourceDefinition, len(sourceDefinitions))
	for i, def := range sourceDefinitions {
		def.AllowedParams = append([]string{}, def.AllowedParams...)
		out[i] = def
	}
	return out
}

// SourceIDs returns every source id in declaration order
func SourceIDs() []string {
	ids := make([]string, len(sourceDefinitions))
	for i, def := range sourceDefinitions {
		ids[i] = def.ID
	}
	return ids
}

// LookupSource finds a source by id
func LookupSource(id string) (SourceDefinition, bool) {
	for _, def := range sourceDefinitions {
		if def.ID == id {
			return def, true
		}
	}
	return SourceDefinition{}, false
}

// IsSupportedSource reports whether id is in the catalogue
func IsSupportedSource(id string) bool {
	_, ok := LookupSource(id)
	return ok
}

// CompatRoutes lists the legacy per-source routes
func CompatRoutes() []CompatRoute {
	routes := make([]CompatRoute, len(sourceDefinitions))
	for i, def := range sourceDefinitions {
		routes[i] = CompatRoute{Name: def.ID, Path: "/" + def.ID, Title: def.Title, Type: def.Type}
	}
	return routes
}
