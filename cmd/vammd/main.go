package main

import (
	"os"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/volmexfinance/volmex-amm/internal/config"
	"github.com/volmexfinance/volmex-amm/internal/controller"
	"github.com/volmexfinance/volmex-amm/internal/logger"
	"github.com/volmexfinance/volmex-amm/internal/oracle"
	"github.com/volmexfinance/volmex-amm/internal/pool"
	"github.com/volmexfinance/volmex-amm/internal/protocol"
	"github.com/volmexfinance/volmex-amm/internal/repricer"
	"github.com/volmexfinance/volmex-amm/internal/state"
	"github.com/volmexfinance/volmex-amm/internal/token"
	"github.com/volmexfinance/volmex-amm/internal/types"
	"github.com/volmexfinance/volmex-amm/internal/utils"
	"github.com/volmexfinance/volmex-amm/internal/web"
)

// Default genesis parameters for the bootstrap market. Amounts are
// BONE-scaled; prices are in 1e6 units.
var (
	defaultCapRatio       = uint64(250)
	defaultInitialPrice   = sdkmath.NewInt(125_000_000)
	defaultMinCollateral  = sdkmath.NewIntWithDecimal(25, 18)
	defaultBaseFee        = sdkmath.NewIntWithDecimal(2, 16)   // 0.02
	defaultMaxFee         = sdkmath.NewIntWithDecimal(4, 17)   // 0.40
	defaultFeeAmp         = sdkmath.NewInt(10)
	defaultQMin           = sdkmath.NewInt(1_000_000)
	defaultPMin           = sdkmath.NewIntWithDecimal(1, 16)   // 0.01
	defaultExposureLimit  = sdkmath.NewIntWithDecimal(25, 16)  // 0.25
	defaultSeedBalance    = sdkmath.NewIntWithDecimal(1, 18)
	defaultSeedCollateral = sdkmath.NewIntWithDecimal(1000, 18)
)

// main is the entry point for the volmex-amm daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Volmex AMM daemon starting...")

	// --- 2. Event Sink ---
	var recorder types.Recorder = types.NewMemoryRecorder()
	if config.PersistEvents {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		recorder = state.NewJournal()
	}

	// --- 3. Core Wiring ---
	owner := types.Account(config.OwnerAccount)
	treasury := types.Account(config.TreasuryAccount)

	symbol := os.Getenv("INDEX_SYMBOL")
	if symbol == "" {
		symbol = "ETHV"
	}

	collateral := token.New("Volmex USDC", "USDC", 18)
	volatility := token.New(symbol+" Volatility Token", symbol, 18)
	inverse := token.New("Inverse "+symbol+" Volatility Token", "i"+symbol, 18)

	minter, err := protocol.New(protocol.Config{
		Owner:                owner,
		Account:              types.Account("protocol/" + symbol),
		Collateral:           collateral,
		Volatility:           volatility,
		InverseVolatility:    inverse,
		MinimumCollateralQty: defaultMinCollateral,
		VolatilityCapRatio:   defaultCapRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create minting protocol")
	}

	priceOracle := oracle.New(owner, int(config.TwapPoints), recorder)
	indexID, err := priceOracle.AddIndex(owner, defaultInitialPrice, minter, symbol, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register volatility index")
	}

	pricer, err := repricer.New(priceOracle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repricer")
	}

	market, err := pool.New(pool.Config{
		ID:              0,
		Account:         types.Account("pool/" + symbol),
		Owner:           owner,
		FeeSink:         treasury,
		Repricer:        pricer,
		Minter:          minter,
		VolatilityIndex: indexID,
		Recorder:        recorder,
		ShareName:       symbol + " Pool Share",
		ShareSymbol:     "VLP-" + symbol,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pool")
	}

	router, err := controller.New(controller.Config{
		Owner:    owner,
		Account:  "controller",
		Treasury: treasury,
		Recorder: recorder,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create controller")
	}
	if err := market.SetController(owner, router); err != nil {
		log.Fatal().Err(err).Msg("Failed to register controller on pool")
	}

	poolID, err := router.AddPool(owner, market)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register pool")
	}
	stableID, err := router.AddStableCoin(owner, collateral)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register stablecoin")
	}
	if err := router.AddProtocol(owner, poolID, stableID, minter); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind protocol")
	}
	if err := router.SetPoolFeeParams(owner, poolID, defaultBaseFee, defaultMaxFee, defaultFeeAmp, defaultFeeAmp); err != nil {
		log.Fatal().Err(err).Msg("Failed to set pool fee parameters")
	}

	// --- 4. Optional Liquidity Bootstrap ---
	if os.Getenv("BOOTSTRAP_LIQUIDITY") == "true" {
		if err := bootstrapLiquidity(owner, poolID, collateral, volatility, inverse, minter, router); err != nil {
			log.Fatal().Err(err).Msg("Failed to bootstrap liquidity")
		}
		log.Info().Str("symbol", symbol).Msg("Bootstrap liquidity seeded")
	}

	log.Info().
		Str("symbol", symbol).
		Uint64("index", uint64(indexID)).
		Uint64("pool", uint64(poolID)).
		Msg("Market wired")

	// --- 5. Web Server ---
	webServer := web.NewWebServer(config.WebPort, priceOracle, router, config.PersistEvents)
	log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting API server")
	if err := webServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Web server failed")
	}
}

// bootstrapLiquidity mints demo collateral to the owner, collateralizes
// it and finalizes the pool with symmetric seed reserves.
func bootstrapLiquidity(owner types.Account, poolID types.PoolID, collateral, volatility, inverse *token.Token, minter protocol.Minter, router *controller.Controller) error {
	if err := collateral.Mint(owner, defaultSeedCollateral); err != nil {
		return err
	}
	if _, _, err := minter.Collateralize(owner, defaultSeedCollateral); err != nil {
		return err
	}
	if err := volatility.Approve(owner, router.Account(), defaultSeedBalance); err != nil {
		return err
	}
	if err := inverse.Approve(owner, router.Account(), defaultSeedBalance); err != nil {
		return err
	}
	return router.FinalizePool(owner, poolID,
		defaultSeedBalance, utils.BONE,
		defaultSeedBalance, utils.BONE,
		defaultExposureLimit, defaultExposureLimit,
		defaultPMin, defaultQMin)
}
