package config

const (
	// TopicIndexBuild is the NSQ topic for background embedding index builds.
	TopicIndexBuild = "index.build"

	// ChannelIndexer is the NSQ channel the index consumer subscribes with.
	ChannelIndexer = "indexer"
)
