// Package config holds the elonbot configuration keys, their defaults and the helpers to load
// them from a config file, a .env file and the environment
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/crypt"
	"github.com/spf13/viper"
)

const (
	TokenKey                              = "token"                               // Slack bot token
	DebugKey                              = "debug"                               // Debug mode boolean
	BotNameKey                            = "botName"                             // Username replies are posted as
	BotIconEmojiKey                       = "botIconEmoji"                        // Emoji used as the bot icon on replies
	UserInfoCacheSizeKey                  = "userInfoCacheSize"                   // Size of the user info cache. Set to 0 to disable caching
	TimeLocationKey                       = "timeLocation"                        // The time.Location to use for scheduled jobs
	MessageProcessingPartitionCount       = "messageProcessing.partitionCount"    // Number of partitions (goroutines) messages are spread over
	MessageProcessingBufferedMessageCount = "messageProcessing.bufferedMessages"  // Buffered messages per partition before blocking
	EncryptionKeyKey                      = "encryptionKey"                       // Hex key or passphrase for field encryption. Empty disables it
	StorageBackendKey                     = "storage.backend"                     // leveldb or datastore
	StoragePathKey                        = "storage.path"                        // LevelDB root directory
	DatastoreProjectIDKey                 = "storage.datastore.projectID"         // Google Cloud project for the datastore backend
	DatastoreCredentialsFileKey           = "storage.datastore.credentialsFile"   // Optional service account credentials file
	OracleProviderKey                     = "oracle.provider"                     // none, openai or gemini
	OracleAPIKeyKey                       = "oracle.apiKey"                       // Language model api key
	OracleModelKey                        = "oracle.model"                        // Language model name
	OracleBaseURLKey                      = "oracle.baseURL"                      // Base url of an openai compatible endpoint
	OracleTimeoutKey                      = "oracle.timeout"                      // Timeout of a single oracle call
	ReplyMaxTokensKey                     = "oracle.replyMaxTokens"               // Output token cap for generated replies
	CheckinCronKey                        = "checkin.cron"                        // Cron expression of the daily check-in broadcast
	CheckinPauseKey                       = "checkin.pause"                       // Pause between two check-in messages
	SweepCronKey                          = "sweep.cron"                          // Cron expression of the deadline sweep
	RetentionCronKey                      = "retention.cron"                      // Cron expression of the retention job
	RetentionInteractionMaxAgeKey         = "retention.interactionMaxAge"         // Max age of logged interactions. 0 keeps them forever
	RetentionInactiveGoalMaxAgeKey        = "retention.inactiveGoalMaxAge"        // Max age of completed or abandoned goals. 0 keeps them forever
	MetricsAddressKey                     = "metrics.address"                     // Listen address of the prometheus endpoint. Empty disables it
	EmployeesKey                          = "employees"                           // Roster of employees receiving check-ins
)

// Storage backends
const (
	LevelDBBackend   = "leveldb"
	DatastoreBackend = "datastore"
)

// Oracle providers
const (
	NoOracle     = "none"
	OpenAIOracle = "openai"
	GeminiOracle = "gemini"
)

const (
	defaultBotName                         = "Elon"
	defaultBotIconEmoji                    = ":rocket:"
	defaultUserInfoCacheSize               = 500
	defaultTimeLocation                    = "Local"
	defaultMessageProcessingPartitionCount = 16
	defaultBufferedMessageCount            = 10
	defaultStoragePath                     = "~/.elonbot"
	defaultOracleTimeout                   = 30 * time.Second
	defaultReplyMaxTokens                  = 400
	defaultCheckinCron                     = "30 16 * * 1-5"
	defaultCheckinPause                    = time.Second
	defaultSweepCron                       = "0 9 * * 1-5"
	defaultRetentionCron                   = "0 2 * * *"
)

// envPrefix is the prefix of environment variables overriding configuration keys. Nested keys use
// underscores (ELON_ORACLE_APIKEY overrides oracle.apiKey)
const envPrefix = "ELON"

// NewViperWithDefaults creates a new viper instance with the default elonbot values
func NewViperWithDefaults() (v *viper.Viper) {
	v = viper.New()

	return LayerConfigWithDefaults(v)
}

// LayerConfigWithDefaults sets the elonbot defaults on an existing viper instance. Values already
// set take precedence over the defaults
func LayerConfigWithDefaults(v *viper.Viper) (lv *viper.Viper) {
	v.SetDefault(DebugKey, false)
	v.SetDefault(BotNameKey, defaultBotName)
	v.SetDefault(BotIconEmojiKey, defaultBotIconEmoji)
	v.SetDefault(UserInfoCacheSizeKey, defaultUserInfoCacheSize)
	v.SetDefault(TimeLocationKey, defaultTimeLocation)
	v.SetDefault(MessageProcessingPartitionCount, defaultMessageProcessingPartitionCount)
	v.SetDefault(MessageProcessingBufferedMessageCount, defaultBufferedMessageCount)
	v.SetDefault(StorageBackendKey, LevelDBBackend)
	v.SetDefault(StoragePathKey, defaultStoragePath)
	v.SetDefault(OracleProviderKey, NoOracle)
	v.SetDefault(OracleTimeoutKey, defaultOracleTimeout)
	v.SetDefault(ReplyMaxTokensKey, defaultReplyMaxTokens)
	v.SetDefault(CheckinCronKey, defaultCheckinCron)
	v.SetDefault(CheckinPauseKey, defaultCheckinPause)
	v.SetDefault(SweepCronKey, defaultSweepCron)
	v.SetDefault(RetentionCronKey, defaultRetentionCron)
	v.SetDefault(RetentionInteractionMaxAgeKey, time.Duration(0))
	v.SetDefault(RetentionInactiveGoalMaxAgeKey, time.Duration(0))

	return v
}

// Load builds the configuration from, in increasing order of precedence, the defaults, the
// optional config file at path, a .env file in the working directory and ELON_ prefixed
// environment variables
func Load(path string) (v *viper.Viper, err error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env file")
	}

	v = NewViperWithDefaults()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read configuration file [%s]", path)
		}
	}

	return v, nil
}

// GetTimeLocation returns the time.Location from the configuration
func GetTimeLocation(v *viper.Viper) (timeLoc *time.Location, err error) {
	timeLocName := v.GetString(TimeLocationKey)
	timeLoc, err = time.LoadLocation(timeLocName)
	if err != nil {
		return nil, fmt.Errorf("Failed to load time location [%s]: %v", timeLocName, err)
	}

	return timeLoc, nil
}

// GetCipher returns the field cipher configured by the EncryptionKeyKey. A missing key returns a
// no-op cipher
func GetCipher(v *viper.Viper) (c crypt.Cipher, err error) {
	c, err = crypt.New(v.GetString(EncryptionKeyKey))
	if err != nil {
		return nil, errors.Wrap(err, "invalid encryption key")
	}

	return c, nil
}

// GetSecret returns the value of key, decrypted with c when it was stored encrypted
func GetSecret(v *viper.Viper, key string, c crypt.Cipher) (secret string, err error) {
	secret, err = c.Decrypt(v.GetString(key))
	if err != nil {
		return "", errors.Wrapf(err, "failed to decrypt [%s]", key)
	}

	return secret, nil
}

// RequireKeys returns an error listing every key without a value
func RequireKeys(v *viper.Viper, keys ...string) (err error) {
	missing := make([]string, 0)
	for _, k := range keys {
		if !v.IsSet(k) || v.GetString(k) == "" {
			missing = append(missing, k)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("Missing configuration value for [%s]", strings.Join(missing, ", "))
	}

	return nil
}
