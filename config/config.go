package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	JWTSecret      string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GameConfig holds the match tunables. The zero value is not usable;
// call DefaultGameConfig or load from file.
type GameConfig struct {
	QuestionsDir    string        `mapstructure:"questions_dir"`
	MaxQuestions    int           `mapstructure:"max_questions"`
	MatchTimeout    time.Duration `mapstructure:"match_timeout"`
	QuestionTimeout time.Duration `mapstructure:"question_timeout"`
	AnswerWindow    time.Duration `mapstructure:"answer_window"`
	AdvanceDelay    time.Duration `mapstructure:"advance_delay"`
	GracePeriod     time.Duration `mapstructure:"grace_period"`
	BaseScore       int           `mapstructure:"base_score"`
	TimeBonusCap    int           `mapstructure:"time_bonus_cap"`
	ForfeitScore    int           `mapstructure:"forfeit_score"`
}

// DefaultGameConfig returns the stock rules: 30 minute match deadline,
// 20 second question deadline, 15 second answer window used for the
// time bonus, 10+15 scoring and a forfeit score of 50.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		QuestionsDir:    "data/questions",
		MaxQuestions:    20,
		MatchTimeout:    30 * time.Minute,
		QuestionTimeout: 20 * time.Second,
		AnswerWindow:    15 * time.Second,
		AdvanceDelay:    1500 * time.Millisecond,
		GracePeriod:     10 * time.Second,
		BaseScore:       10,
		TimeBonusCap:    15,
		ForfeitScore:    50,
	}
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	defaults := DefaultGameConfig()
	viper.SetDefault("game.questions_dir", defaults.QuestionsDir)
	viper.SetDefault("game.max_questions", defaults.MaxQuestions)
	viper.SetDefault("game.match_timeout", defaults.MatchTimeout)
	viper.SetDefault("game.question_timeout", defaults.QuestionTimeout)
	viper.SetDefault("game.answer_window", defaults.AnswerWindow)
	viper.SetDefault("game.advance_delay", defaults.AdvanceDelay)
	viper.SetDefault("game.grace_period", defaults.GracePeriod)
	viper.SetDefault("game.base_score", defaults.BaseScore)
	viper.SetDefault("game.time_bonus_cap", defaults.TimeBonusCap)
	viper.SetDefault("game.forfeit_score", defaults.ForfeitScore)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
