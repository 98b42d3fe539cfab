package app

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func readConfigFromENV(envFile string) {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil {
			log.Warn("[ENV] Error loading .env file: ", err.Error())
		}
	}

	if os.Getenv("MONGODB_URI") != "" {
		Config.MongoDB.URI = os.Getenv("MONGODB_URI")
	}
	if os.Getenv("MONGODB_DATABASE") != "" {
		Config.MongoDB.Database = os.Getenv("MONGODB_DATABASE")
	}
	if os.Getenv("MONGODB_TIMEOUT_MS") != "" {
		timeoutMillis, err := strconv.ParseInt(os.Getenv("MONGODB_TIMEOUT_MS"), 10, 64)
		if err != nil {
			log.Warn("[ENV] Error parsing MONGODB_TIMEOUT_MS: ", err.Error())
		} else {
			Config.MongoDB.TimeoutMillis = timeoutMillis
		}
	}

	// signer
	if os.Getenv("SIGNER_PRIVATE_KEY") != "" {
		Config.Signer.PrivateKey = os.Getenv("SIGNER_PRIVATE_KEY")
	}
	if os.Getenv("SIGNER_MNEMONIC") != "" {
		Config.Signer.Mnemonic = os.Getenv("SIGNER_MNEMONIC")
	}
	if os.Getenv("SIGNER_GCP_KMS_KEY_NAME") != "" {
		Config.Signer.GcpKmsKeyName = os.Getenv("SIGNER_GCP_KMS_KEY_NAME")
	}

	// coordination api
	if os.Getenv("COORDINATOR_BASE_URL") != "" {
		Config.Coordinator.BaseURL = os.Getenv("COORDINATOR_BASE_URL")
	}

	// bundlr
	if os.Getenv("BUNDLR_NODE_URL") != "" {
		Config.Bundlr.NodeURL = os.Getenv("BUNDLR_NODE_URL")
	}

	// logger
	if os.Getenv("LOG_LEVEL") != "" {
		Config.Logger.Level = os.Getenv("LOG_LEVEL")
	}

	// google secret manager
	if os.Getenv("GSM_ENABLED") != "" {
		enabled, err := strconv.ParseBool(os.Getenv("GSM_ENABLED"))
		if err != nil {
			log.Warn("[ENV] Error parsing GSM_ENABLED: ", err.Error())
		} else {
			Config.GoogleSecretManager.Enabled = enabled
		}
	}
	if os.Getenv("GSM_PROJECT_ID") != "" {
		Config.GoogleSecretManager.ProjectId = os.Getenv("GSM_PROJECT_ID")
	}
}
