package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// registryABI describes the response registry contract. Records are keyed
// by source post id.
const registryABI = `[
	{"name":"recordResponse","type":"function","stateMutability":"nonpayable","inputs":[{"name":"replyId","type":"string"},{"name":"postId","type":"string"},{"name":"contentHash","type":"bytes32"}],"outputs":[]},
	{"name":"hasResponse","type":"function","stateMutability":"view","inputs":[{"name":"postId","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"getResponse","type":"function","stateMutability":"view","inputs":[{"name":"postId","type":"string"}],"outputs":[{"name":"","type":"bytes32"}]}
]`

// EthReader reads block heights and confirmation depths from one chain.
type EthReader struct {
	client *ethclient.Client
}

var _ ConfirmationReader = (*EthReader)(nil)

// NewEthReader dials an RPC endpoint for read-only confirmation tracking.
func NewEthReader(ctx context.Context, rpcURL string) (*EthReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return &EthReader{client: client}, nil
}

// CurrentBlockHeight returns the latest block number.
func (r *EthReader) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	height, err := r.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return height, nil
}

// TransactionConfirmations returns the confirmation depth of a transaction,
// or nil when the chain has not observed it.
func (r *EthReader) TransactionConfirmations(ctx context.Context, txHash string) (*uint64, error) {
	receipt, err := r.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("transaction receipt: %w", err)
	}
	if receipt.BlockNumber == nil {
		return nil, nil
	}

	head, err := r.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	mined := receipt.BlockNumber.Uint64()
	if head < mined {
		zero := uint64(0)
		return &zero, nil
	}
	confirmations := head - mined + 1
	return &confirmations, nil
}

// Close releases the underlying RPC connection.
func (r *EthReader) Close() {
	r.client.Close()
}

// EthGateway extends EthReader with registry reads and writes on the
// primary chain.
type EthGateway struct {
	*EthReader
	contract common.Address
	registry abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
}

var _ Gateway = (*EthGateway)(nil)

// NewEthGateway dials the primary chain and prepares the registry signer.
// An empty private key yields a read-only gateway.
func NewEthGateway(ctx context.Context, rpcURL, contractAddr, privateKeyHex string, chainID uint64) (*EthGateway, error) {
	reader, err := NewEthReader(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	registry, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	g := &EthGateway{
		EthReader: reader,
		contract:  common.HexToAddress(contractAddr),
		registry:  registry,
		chainID:   new(big.Int).SetUint64(chainID),
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse submitter key: %w", err)
		}
		g.key = key
		g.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return g, nil
}

// HasResponse reports whether the registry already records a response for
// the source post.
func (g *EthGateway) HasResponse(ctx context.Context, postID string) (bool, error) {
	data, err := g.registry.Pack("hasResponse", postID)
	if err != nil {
		return false, fmt.Errorf("pack hasResponse: %w", err)
	}

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call hasResponse: %w", err)
	}

	results, err := g.registry.Unpack("hasResponse", out)
	if err != nil {
		return false, fmt.Errorf("unpack hasResponse: %w", err)
	}
	exists, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hasResponse result type %T", results[0])
	}
	return exists, nil
}

// GetResponse returns the content hash recorded for the source post.
func (g *EthGateway) GetResponse(ctx context.Context, postID string) ([32]byte, error) {
	var hash [32]byte

	data, err := g.registry.Pack("getResponse", postID)
	if err != nil {
		return hash, fmt.Errorf("pack getResponse: %w", err)
	}

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data}, nil)
	if err != nil {
		return hash, fmt.Errorf("call getResponse: %w", err)
	}

	results, err := g.registry.Unpack("getResponse", out)
	if err != nil {
		return hash, fmt.Errorf("unpack getResponse: %w", err)
	}
	hash, ok := results[0].([32]byte)
	if !ok {
		return hash, fmt.Errorf("unexpected getResponse result type %T", results[0])
	}
	return hash, nil
}

// SubmitRecordResponse writes the reply proof to the registry. The same
// inputs always address the same registry slot, so resubmitting a stalled
// transaction is safe.
func (g *EthGateway) SubmitRecordResponse(ctx context.Context, replyPostID, sourcePostID string, contentHash [32]byte) (string, error) {
	if g.key == nil {
		return "", errors.New("no submitter key configured")
	}

	data, err := g.registry.Pack("recordResponse", replyPostID, sourcePostID, contentHash)
	if err != nil {
		return "", fmt.Errorf("pack recordResponse: %w", err)
	}

	nonce, err := g.client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	tipCap, err := g.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest tip cap: %w", err)
	}

	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From: g.from,
		To:   &g.contract,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit * 120 / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &g.contract,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}

// DialReaders connects a ConfirmationReader for every configured chain.
func DialReaders(ctx context.Context, endpoints map[uint64]string) (map[uint64]ConfirmationReader, error) {
	readers := make(map[uint64]ConfirmationReader, len(endpoints))
	for chainID, url := range endpoints {
		reader, err := NewEthReader(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", chainID, err)
		}
		readers[chainID] = reader
	}
	return readers, nil
}
