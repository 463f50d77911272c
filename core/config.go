package core

import "time"

// 默认参数。各组件在自身配置缺省（零值）时回退到这里的取值，
// config 包的 Default() 也以此为准。
const (
	// DefaultFreshnessWindow 兴趣向量的新鲜度窗口：超过则返回旧值并触发后台刷新
	DefaultFreshnessWindow = 4 * time.Hour

	// DefaultInterestWindow 构建“近期”兴趣向量使用的交互窗口
	DefaultInterestWindow = 30 * 24 * time.Hour

	// DefaultHistoricalWindow 漂移检测的历史窗口上界（30-90 天）
	DefaultHistoricalWindow = 90 * 24 * time.Hour

	// DefaultVectorTopK 兴趣向量每个维度保留的最大条目数
	DefaultVectorTopK = 50

	// DefaultMinInteractions 少于该交互数时使用年级默认向量
	DefaultMinInteractions = 5

	// DefaultDriftThreshold 余弦相似度低于该值视为发生兴趣漂移
	DefaultDriftThreshold = 0.6
)

// 协同过滤相关默认值。
const (
	DefaultPeerMinAccountAge   = 30 * 24 * time.Hour
	DefaultPeerMinInteractions = 50
	DefaultSimilarityThreshold = 0.15
	DefaultTopKSimilarUsers    = 50
	DefaultMaxPeerPopulation   = 500
	DefaultTopicSimilarity     = 0.7
	DefaultGradeSimilarity     = 0.3
)

// Feed 编排相关默认值。
const (
	DefaultPageSize          = 20
	DefaultOverFetchFactor   = 5
	DefaultHorizonPages      = 10
	DefaultMaxPoolSize       = 1000
	DefaultLocalRatio        = 0.7
	DefaultCountryWeight     = 0.2
	DefaultStampedeThreshold = 10
	DefaultFeedCacheTTL      = 2 * time.Minute
)
